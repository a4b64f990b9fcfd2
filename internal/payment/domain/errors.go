package domain

import "errors"

var (
	// ErrAuthentication covers a missing or mismatched signature and a
	// signature that only matches an inactive processor.
	ErrAuthentication = errors.New("authentication_failed")

	// ErrStaleEvent means the resource has moved past the state the event
	// describes, or the payment is not subscription linked.
	ErrStaleEvent = errors.New("stale_event")

	// ErrUnresolvedSubscription means no local recurring contribution carries
	// the external subscription id.
	ErrUnresolvedSubscription = errors.New("unresolved_subscription")

	// ErrAmbiguousContact means more than one local contact shares the payer email.
	ErrAmbiguousContact = errors.New("ambiguous_contact")

	// ErrUnmappedStatus means the provider reported a status with no local mapping.
	ErrUnmappedStatus = errors.New("unmapped_status")

	// ErrDuplicateExternalReference is a storage-level uniqueness violation on
	// an external payment or subscription id. Callers treat it as already handled.
	ErrDuplicateExternalReference = errors.New("duplicate_external_reference")

	// ErrDownstreamWrite means a dependent write failed after the primary
	// ledger write committed.
	ErrDownstreamWrite = errors.New("downstream_write_failed")

	ErrProviderRequest       = errors.New("provider_request_failed")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrResourceNotFound      = errors.New("resource_not_found")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidConfig         = errors.New("invalid_config")
)

// IsBusinessDrop reports whether err is an accept-and-drop outcome: the event
// is logged and considered handled.
func IsBusinessDrop(err error) bool {
	return errors.Is(err, ErrStaleEvent) ||
		errors.Is(err, ErrUnresolvedSubscription) ||
		errors.Is(err, ErrDuplicateExternalReference) ||
		errors.Is(err, ErrAmbiguousContact)
}
