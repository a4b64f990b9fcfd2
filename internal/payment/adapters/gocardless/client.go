package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
)

const (
	liveBaseURL    = "https://api.gocardless.com"
	sandboxBaseURL = "https://api-sandbox.gocardless.com"
	apiVersion     = "2015-07-06"
	defaultTimeout = 30 * time.Second
)

type ClientConfig struct {
	AccessToken string
	Environment string
	BaseURL     string
	// MaxRetries is the number of extra attempts for transient failures.
	// Zero disables retrying.
	MaxRetries int
	HTTPClient *http.Client
}

// Client is the REST implementation of paymentdomain.ProviderClient.
type Client struct {
	accessToken string
	baseURL     string
	maxRetries  int
	http        *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = sandboxBaseURL
		if strings.EqualFold(strings.TrimSpace(cfg.Environment), "live") {
			baseURL = liveBaseURL
		}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		accessToken: cfg.AccessToken,
		baseURL:     baseURL,
		maxRetries:  cfg.MaxRetries,
		http:        httpClient,
	}
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Status    int
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gocardless %d %s: %s (request %s)", e.Status, e.Type, e.Message, e.RequestID)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return paymentdomain.ErrResourceNotFound
	}
	return paymentdomain.ErrProviderRequest
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

type listMeta struct {
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
}

func (c *Client) GetPayment(ctx context.Context, id string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, "", nil, "payments", &payment, nil); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*paymentdomain.Subscription, error) {
	var sub paymentdomain.Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil, "", nil, "subscriptions", &sub, nil); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) ListSubscriptions(ctx context.Context, filter paymentdomain.SubscriptionFilter) (*paymentdomain.SubscriptionPage, error) {
	query := url.Values{}
	if filter.CreatedAtGTE != nil {
		query.Set("created_at[gte]", filter.CreatedAtGTE.UTC().Format(time.RFC3339))
	}
	if filter.Mandate != "" {
		query.Set("mandate", filter.Mandate)
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	setPaging(query, filter.After, filter.Limit)

	var (
		items []paymentdomain.Subscription
		meta  listMeta
	)
	if err := c.do(ctx, http.MethodGet, "/subscriptions", query, "", nil, "subscriptions", &items, &meta); err != nil {
		return nil, err
	}
	return &paymentdomain.SubscriptionPage{Items: items, After: meta.Cursors.After}, nil
}

func (c *Client) ListPayments(ctx context.Context, filter paymentdomain.PaymentFilter) (*paymentdomain.PaymentPage, error) {
	query := url.Values{}
	if filter.Subscription != "" {
		query.Set("subscription", filter.Subscription)
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	setPaging(query, filter.After, filter.Limit)

	var (
		items []paymentdomain.Payment
		meta  listMeta
	)
	if err := c.do(ctx, http.MethodGet, "/payments", query, "", nil, "payments", &items, &meta); err != nil {
		return nil, err
	}
	return &paymentdomain.PaymentPage{Items: items, After: meta.Cursors.After}, nil
}

func (c *Client) CreateSubscription(ctx context.Context, params paymentdomain.CreateSubscriptionParams) (*paymentdomain.Subscription, error) {
	body := map[string]any{
		"amount":        params.Amount,
		"currency":      strings.ToUpper(params.Currency),
		"name":          params.Name,
		"interval_unit": params.IntervalUnit,
		"interval":      params.Interval,
		"links":         map[string]string{"mandate": params.Mandate},
	}
	if params.DayOfMonth != nil {
		body["day_of_month"] = *params.DayOfMonth
	}
	if params.StartDate != "" {
		body["start_date"] = params.StartDate
	}
	if len(params.Metadata) > 0 {
		body["metadata"] = params.Metadata
	}

	var sub paymentdomain.Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", nil, params.IdempotencyKey, map[string]any{"subscriptions": body}, "subscriptions", &sub, nil); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) UpdateSubscription(ctx context.Context, id string, params paymentdomain.UpdateSubscriptionParams) (*paymentdomain.Subscription, error) {
	body := map[string]any{}
	if params.Amount != nil {
		body["amount"] = *params.Amount
	}
	if params.Name != nil {
		body["name"] = *params.Name
	}

	var sub paymentdomain.Subscription
	if err := c.do(ctx, http.MethodPut, "/subscriptions/"+url.PathEscape(id), nil, "", map[string]any{"subscriptions": body}, "subscriptions", &sub, nil); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string) (*paymentdomain.Subscription, error) {
	var sub paymentdomain.Subscription
	path := "/subscriptions/" + url.PathEscape(id) + "/actions/cancel"
	if err := c.do(ctx, http.MethodPost, path, nil, "", map[string]any{"data": map[string]any{}}, "subscriptions", &sub, nil); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) CreateRedirectFlow(ctx context.Context, params paymentdomain.RedirectFlowParams) (*paymentdomain.RedirectFlow, error) {
	body := map[string]any{
		"description":          params.Description,
		"session_token":        params.SessionToken,
		"success_redirect_url": params.SuccessRedirectURL,
	}
	if params.Customer != nil {
		body["prefilled_customer"] = map[string]string{
			"email":         params.Customer.Email,
			"given_name":    params.Customer.GivenName,
			"family_name":   params.Customer.FamilyName,
			"address_line1": params.Customer.AddressLine1,
			"city":          params.Customer.City,
			"postal_code":   params.Customer.PostalCode,
			"country_code":  params.Customer.CountryCode,
		}
	}

	var flow paymentdomain.RedirectFlow
	if err := c.do(ctx, http.MethodPost, "/redirect_flows", nil, "", map[string]any{"redirect_flows": body}, "redirect_flows", &flow, nil); err != nil {
		return nil, err
	}
	return &flow, nil
}

func (c *Client) CompleteRedirectFlow(ctx context.Context, id string, sessionToken string) (*paymentdomain.RedirectFlow, error) {
	var flow paymentdomain.RedirectFlow
	path := "/redirect_flows/" + url.PathEscape(id) + "/actions/complete"
	body := map[string]any{"data": map[string]string{"session_token": sessionToken}}
	if err := c.do(ctx, http.MethodPost, path, nil, "", body, "redirect_flows", &flow, nil); err != nil {
		return nil, err
	}
	return &flow, nil
}

func (c *Client) GetMandate(ctx context.Context, id string) (*paymentdomain.Mandate, error) {
	var mandate paymentdomain.Mandate
	if err := c.do(ctx, http.MethodGet, "/mandates/"+url.PathEscape(id), nil, "", nil, "mandates", &mandate, nil); err != nil {
		return nil, err
	}
	return &mandate, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*paymentdomain.Customer, error) {
	var customer paymentdomain.Customer
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, "", nil, "customers", &customer, nil); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	idempotencyKey string,
	body any,
	envelope string,
	out any,
	meta *listMeta,
) error {
	if c.maxRetries <= 0 {
		return c.roundTrip(ctx, method, path, query, idempotencyKey, body, envelope, out, meta)
	}

	operation := func() (struct{}, error) {
		err := c.roundTrip(ctx, method, path, query, idempotencyKey, body, envelope, out, meta)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	return err
}

func (c *Client) roundTrip(
	ctx context.Context,
	method, path string,
	query url.Values,
	idempotencyKey string,
	body any,
	envelope string,
	out any,
	meta *listMeta,
) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("GoCardless-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", paymentdomain.ErrProviderRequest, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", paymentdomain.ErrProviderRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var wrapper struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &wrapper) == nil && wrapper.Error != nil {
			apiErr = wrapper.Error
			apiErr.Status = resp.StatusCode
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	var envelopeBody map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelopeBody); err != nil {
		return fmt.Errorf("%w: decode response: %v", paymentdomain.ErrProviderRequest, err)
	}
	payload, ok := envelopeBody[envelope]
	if !ok {
		return fmt.Errorf("%w: response missing %q", paymentdomain.ErrProviderRequest, envelope)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", paymentdomain.ErrProviderRequest, envelope, err)
	}
	if meta != nil {
		if rawMeta, ok := envelopeBody["meta"]; ok {
			_ = json.Unmarshal(rawMeta, meta)
		}
	}
	return nil
}

func setPaging(query url.Values, after string, limit int) {
	if after != "" {
		query.Set("after", after)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
}

var _ paymentdomain.ProviderClient = (*Client)(nil)
