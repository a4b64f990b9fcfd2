package importer

import "time"

const (
	ActionCreated  = "created"
	ActionMatched  = "matched"
	ActionSkipped  = "skipped"
	ActionDeclined = "declined"
	ActionFailed   = "failed"
)

// Stats is the run log of one import. It is written as the summary artifact
// and, while the run is going, as the periodic partial snapshot.
type Stats struct {
	RunID       string     `json:"run_id"`
	ProcessorID string     `json:"processor_id"`
	Since       *time.Time `json:"since,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Interrupted bool       `json:"interrupted,omitempty"`

	Subscriptions SubscriptionCounts `json:"subscriptions"`
	Payments      PaymentCounts      `json:"payments"`
	// AmountImported is in minor currency units, summed across currencies.
	AmountImported int64   `json:"amount_imported"`
	Entries        []Entry `json:"entries"`

	SummaryPath string `json:"-"`
	ArchiveKey  string `json:"archive_key,omitempty"`
}

type SubscriptionCounts struct {
	Found   int `json:"found"`
	Created int `json:"created"`
	Matched int `json:"matched"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type PaymentCounts struct {
	Found   int `json:"found"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Entry records what happened to one remote subscription.
type Entry struct {
	SubscriptionID  string `json:"subscription_id"`
	RecurringID     string `json:"recurring_id,omitempty"`
	Action          string `json:"action"`
	Reason          string `json:"reason,omitempty"`
	Status          string `json:"status,omitempty"`
	PaymentsFound   int    `json:"payments_found"`
	PaymentsAdded   int    `json:"payments_added"`
	PaymentsSkipped int    `json:"payments_skipped"`
	Amount          int64  `json:"amount"`
}

func (s *Stats) add(e Entry) {
	s.Entries = append(s.Entries, e)
	s.Subscriptions.Found++
	switch e.Action {
	case ActionCreated:
		s.Subscriptions.Created++
	case ActionMatched:
		s.Subscriptions.Matched++
	case ActionFailed:
		s.Subscriptions.Failed++
	default:
		s.Subscriptions.Skipped++
	}
	s.Payments.Found += e.PaymentsFound
	s.Payments.Added += e.PaymentsAdded
	s.Payments.Skipped += e.PaymentsSkipped
	s.AmountImported += e.Amount
}
