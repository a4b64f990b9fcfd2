// Package providertest provides an in-memory provider for tests.
package providertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
)

// FakeClient is an in-memory paymentdomain.ProviderClient.
type FakeClient struct {
	mu            sync.Mutex
	payments      map[string]paymentdomain.Payment
	subscriptions map[string]paymentdomain.Subscription
	mandates      map[string]paymentdomain.Mandate
	customers     map[string]paymentdomain.Customer
	flows         map[string]paymentdomain.RedirectFlow
	seq           int
	calls         []string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		payments:      map[string]paymentdomain.Payment{},
		subscriptions: map[string]paymentdomain.Subscription{},
		mandates:      map[string]paymentdomain.Mandate{},
		customers:     map[string]paymentdomain.Customer{},
		flows:         map[string]paymentdomain.RedirectFlow{},
	}
}

func (f *FakeClient) PutPayment(p paymentdomain.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.ID] = p
}

func (f *FakeClient) PutSubscription(s paymentdomain.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[s.ID] = s
}

func (f *FakeClient) PutMandate(m paymentdomain.Mandate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mandates[m.ID] = m
}

func (f *FakeClient) PutCustomer(c paymentdomain.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[c.ID] = c
}

// Calls returns the method names invoked so far.
func (f *FakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeClient) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *FakeClient) GetPayment(_ context.Context, id string) (*paymentdomain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetPayment")
	p, ok := f.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	return &p, nil
}

func (f *FakeClient) GetSubscription(_ context.Context, id string) (*paymentdomain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetSubscription")
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, notFound("subscription", id)
	}
	return &s, nil
}

func (f *FakeClient) ListSubscriptions(_ context.Context, filter paymentdomain.SubscriptionFilter) (*paymentdomain.SubscriptionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListSubscriptions")

	items := make([]paymentdomain.Subscription, 0, len(f.subscriptions))
	for _, s := range f.subscriptions {
		if filter.CreatedAtGTE != nil && s.CreatedAt.Before(*filter.CreatedAtGTE) {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Mandate != "" && s.Links.Mandate != filter.Mandate {
			continue
		}
		items = append(items, s)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	page, after := paginate(len(items), filter.After, filter.Limit, func(i int) string { return items[i].ID })
	return &paymentdomain.SubscriptionPage{Items: items[page[0]:page[1]], After: after}, nil
}

func (f *FakeClient) ListPayments(_ context.Context, filter paymentdomain.PaymentFilter) (*paymentdomain.PaymentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListPayments")

	items := make([]paymentdomain.Payment, 0)
	for _, p := range f.payments {
		if filter.Subscription != "" && p.Links.Subscription != filter.Subscription {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	page, after := paginate(len(items), filter.After, filter.Limit, func(i int) string { return items[i].ID })
	return &paymentdomain.PaymentPage{Items: items[page[0]:page[1]], After: after}, nil
}

func (f *FakeClient) CreateSubscription(_ context.Context, params paymentdomain.CreateSubscriptionParams) (*paymentdomain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateSubscription")
	f.seq++
	sub := paymentdomain.Subscription{
		ID:           fmt.Sprintf("SB%04d", f.seq),
		CreatedAt:    time.Now().UTC(),
		Amount:       params.Amount,
		Currency:     params.Currency,
		Status:       paymentdomain.SubscriptionActive,
		Name:         params.Name,
		IntervalUnit: params.IntervalUnit,
		Interval:     params.Interval,
		DayOfMonth:   params.DayOfMonth,
		StartDate:    params.StartDate,
		Metadata:     params.Metadata,
		Links:        paymentdomain.SubscriptionLinks{Mandate: params.Mandate},
	}
	f.subscriptions[sub.ID] = sub
	return &sub, nil
}

func (f *FakeClient) UpdateSubscription(_ context.Context, id string, params paymentdomain.UpdateSubscriptionParams) (*paymentdomain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateSubscription")
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, notFound("subscription", id)
	}
	if params.Amount != nil {
		sub.Amount = *params.Amount
	}
	if params.Name != nil {
		sub.Name = *params.Name
	}
	f.subscriptions[id] = sub
	return &sub, nil
}

func (f *FakeClient) CancelSubscription(_ context.Context, id string) (*paymentdomain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CancelSubscription")
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, notFound("subscription", id)
	}
	sub.Status = paymentdomain.SubscriptionCancelled
	f.subscriptions[id] = sub
	return &sub, nil
}

func (f *FakeClient) CreateRedirectFlow(_ context.Context, params paymentdomain.RedirectFlowParams) (*paymentdomain.RedirectFlow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateRedirectFlow")
	f.seq++
	flow := paymentdomain.RedirectFlow{
		ID:                 fmt.Sprintf("RE%04d", f.seq),
		Description:        params.Description,
		SessionToken:       params.SessionToken,
		SuccessRedirectURL: params.SuccessRedirectURL,
		RedirectURL:        fmt.Sprintf("https://pay.example.test/flow/RE%04d", f.seq),
	}
	f.flows[flow.ID] = flow
	return &flow, nil
}

func (f *FakeClient) CompleteRedirectFlow(_ context.Context, id string, sessionToken string) (*paymentdomain.RedirectFlow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CompleteRedirectFlow")
	flow, ok := f.flows[id]
	if !ok {
		return nil, notFound("redirect_flow", id)
	}
	if flow.SessionToken != sessionToken {
		return nil, fmt.Errorf("%w: session token mismatch", paymentdomain.ErrProviderRequest)
	}
	f.seq++
	flow.Links = paymentdomain.RedirectFlowLinks{
		Mandate:  fmt.Sprintf("MD%04d", f.seq),
		Customer: fmt.Sprintf("CU%04d", f.seq),
	}
	f.flows[id] = flow
	return &flow, nil
}

func (f *FakeClient) GetMandate(_ context.Context, id string) (*paymentdomain.Mandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetMandate")
	m, ok := f.mandates[id]
	if !ok {
		return nil, notFound("mandate", id)
	}
	return &m, nil
}

func (f *FakeClient) GetCustomer(_ context.Context, id string) (*paymentdomain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetCustomer")
	c, ok := f.customers[id]
	if !ok {
		return nil, notFound("customer", id)
	}
	return &c, nil
}

// Clients serves fixed clients by processor id.
type Clients map[snowflake.ID]paymentdomain.ProviderClient

func (c Clients) Client(_ context.Context, processorID snowflake.ID) (paymentdomain.ProviderClient, error) {
	client, ok := c[processorID]
	if !ok {
		return nil, paymentdomain.ErrProviderNotFound
	}
	return client, nil
}

func paginate(n int, after string, limit int, idAt func(int) string) ([2]int, string) {
	start := 0
	if after != "" {
		for i := 0; i < n; i++ {
			if idAt(i) == after {
				start = i + 1
				break
			}
		}
	}
	end := n
	if limit > 0 && start+limit < n {
		end = start + limit
	}
	next := ""
	if end < n && end > start {
		next = idAt(end - 1)
	}
	return [2]int{start, end}, next
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", paymentdomain.ErrResourceNotFound, kind, id)
}

var _ paymentdomain.ProviderClient = (*FakeClient)(nil)
