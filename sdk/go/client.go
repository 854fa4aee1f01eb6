// Package cwkhubsdk is a small client for the CWK Hub HTTP API.
package cwkhubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a CWK Hub server. Set one of BearerToken, APIKey or ActorID.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when the server allows legacy header auth.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Slot struct {
	EducatorID      string `json:"educator_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	ExcludeInviteID string `json:"exclude_invite_id,omitempty"`
}

type Session struct {
	ID                   string   `json:"id"`
	ClassID              string   `json:"class_id"`
	TermID               string   `json:"term_id"`
	Date                 string   `json:"date"`
	StartTime            string   `json:"start_time"`
	EndTime              string   `json:"end_time"`
	LeadEducatorID       string   `json:"lead_educator_id"`
	AssistantEducatorIDs []string `json:"assistant_educator_ids"`
	DurationHours        float64  `json:"duration_hours"`
}

type Availability struct {
	Available           bool     `json:"available"`
	Reason              string   `json:"reason,omitempty"`
	BlockID             string   `json:"block_id,omitempty"`
	ConflictingSession  *Session `json:"conflicting_session,omitempty"`
	ConflictingInviteID string   `json:"conflicting_invite_id,omitempty"`
}

type Invite struct {
	ID          string  `json:"id"`
	EducatorID  string  `json:"educator_id"`
	CreatedByID string  `json:"created_by_id"`
	Date        string  `json:"date"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Status      string  `json:"status"`
	Title       string  `json:"title,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	RespondedAt *string `json:"responded_at,omitempty"`
}

type InviteRequest struct {
	Slot
	Title string `json:"title,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Month amounts are decimal strings with two places.
type Month struct {
	Month    int    `json:"month"`
	Name     string `json:"name"`
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Net      string `json:"net"`
}

type FinanceReport struct {
	Year     int     `json:"year"`
	Currency string  `json:"currency"`
	Months   []Month `json:"months"`
	Totals   struct {
		Income   string `json:"income"`
		Expenses string `json:"expenses"`
		Net      string `json:"net"`
	} `json:"totals"`
}

type PendingPayment struct {
	PayerID       string `json:"payer_id"`
	TotalInvoiced string `json:"total_invoiced"`
	TotalPaid     string `json:"total_paid"`
	PendingAmount string `json:"pending_amount"`
	IsOverdue     bool   `json:"is_overdue"`
	InvoiceCount  int    `json:"invoice_count"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Details come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsSlotUnavailable reports whether err is a 409 slot rejection.
func IsSlotUnavailable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "slot_unavailable"
}

func (c *Client) CheckAvailability(ctx context.Context, slot Slot) (Availability, error) {
	var resp Availability
	err := c.do(ctx, http.MethodPost, "availability/check", slot, &resp)
	return resp, err
}

func (c *Client) CreateInvite(ctx context.Context, req InviteRequest) (Invite, error) {
	var resp Invite
	err := c.do(ctx, http.MethodPost, "invites", req, &resp)
	return resp, err
}

func (c *Client) RescheduleInvite(ctx context.Context, id, date, start, end string) (Invite, error) {
	body := map[string]string{"date": date, "start_time": start, "end_time": end}
	var resp Invite
	err := c.do(ctx, http.MethodPatch, "invites/"+url.PathEscape(id), body, &resp)
	return resp, err
}

// RespondInvite accepts or declines a pending invite.
func (c *Client) RespondInvite(ctx context.Context, id, status string) (Invite, error) {
	var resp Invite
	err := c.do(ctx, http.MethodPost, "invites/"+url.PathEscape(id)+"/respond", map[string]string{"status": status}, &resp)
	return resp, err
}

func (c *Client) MonthlyFinance(ctx context.Context, year int) (FinanceReport, error) {
	var resp FinanceReport
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("reports/finance/%d", year), nil, &resp)
	return resp, err
}

func (c *Client) LearnersWithPendingPayments(ctx context.Context) ([]PendingPayment, error) {
	var resp []PendingPayment
	err := c.do(ctx, http.MethodGet, "reports/pending-payments/learners", nil, &resp)
	return resp, err
}

func (c *Client) OrganisationsWithPendingPayments(ctx context.Context) ([]PendingPayment, error) {
	var resp []PendingPayment
	err := c.do(ctx, http.MethodGet, "reports/pending-payments/organisations", nil, &resp)
	return resp, err
}

// EventsPage returns events newest first; pass NextCursor to continue.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
