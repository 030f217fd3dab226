// Package rail is the client for the external payment network. It issues
// exactly one transfer request per call and never retries: a duplicate
// submission could move money twice, so retry decisions belong to the
// caller, and only when no confirmation handle was ever produced.
package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Rejection kinds, classified from the rail's embedded error list.
const (
	KindDestination  = "destination_rejected"
	KindSource       = "source_rejected"
	KindUnclassified = "unclassified"
)

// TransferResult is returned only when the rail produced a confirmation
// handle. Its presence is the sole proof that money moved; from that point
// the transfer is externally committed.
type TransferResult struct {
	Location string
}

// RejectedError is a structured rejection: the rail answered and money did
// not move. Retryable once the underlying funding problem is fixed.
type RejectedError struct {
	Kind   string
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rail rejected transfer (%s): %s", e.Kind, e.Detail)
}

// IndeterminateError means the call failed in a way where it cannot be
// determined whether the rail accepted the transfer. It must never be
// auto-retried; the request needs out-of-band reconciliation first.
type IndeterminateError struct {
	Detail string
	Err    error
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("transfer outcome indeterminate: %s", e.Detail)
}

func (e *IndeterminateError) Unwrap() error { return e.Err }

// Client talks to the rail's transfer endpoint. The injected http.Client
// carries the timeout bound; no call may hang silently.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Wire types for the rail's transfer resource.
type transferBody struct {
	Links  transferLinks  `json:"_links"`
	Amount transferAmount `json:"amount"`
}

type transferLinks struct {
	Source      href `json:"source"`
	Destination href `json:"destination"`
}

type href struct {
	Href string `json:"href"`
}

type transferAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type errorBody struct {
	Embedded struct {
		Errors []railError `json:"errors"`
	} `json:"_embedded"`
	Message string `json:"message"`
}

type railError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Transfer moves amount (a fixed-point USD value) between two funding
// source handles. Both handles must already be validated.
func (c *Client) Transfer(ctx context.Context, sourceURL, destinationURL, amount string) (*TransferResult, error) {
	body := transferBody{
		Links: transferLinks{
			Source:      href{Href: sourceURL},
			Destination: href{Href: destinationURL},
		},
		Amount: transferAmount{Currency: "USD", Value: amount},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding transfer body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The response was never read; the rail may or may not have
		// accepted the transfer.
		return nil, &IndeterminateError{Detail: "no response from rail", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		loc := resp.Header.Get("Location")
		if loc == "" {
			// Accepted but no confirmation handle readable. Without the
			// handle there is no proof of what happened.
			return nil, &IndeterminateError{Detail: "rail accepted but returned no confirmation location"}
		}
		return &TransferResult{Location: loc}, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &IndeterminateError{Detail: "rail error response unreadable", Err: err}
	}
	return nil, classify(resp.StatusCode, raw)
}

// classify maps the rail's embedded error list onto a rejection kind.
// Destination-path errors mean the receiver's funding source is the
// problem; source-path or balance-related errors point at the sender.
func classify(status int, raw []byte) error {
	var parsed errorBody
	if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Embedded.Errors) == 0 {
		detail := parsed.Message
		if detail == "" {
			detail = fmt.Sprintf("rail returned status %d", status)
		}
		return &RejectedError{Kind: KindUnclassified, Detail: detail}
	}

	messages := make([]string, 0, len(parsed.Embedded.Errors))
	kind := KindUnclassified
	for _, e := range parsed.Embedded.Errors {
		messages = append(messages, e.Message)
		switch {
		case strings.Contains(e.Path, "destination"):
			kind = KindDestination
		case kind == KindUnclassified && strings.Contains(e.Path, "source"):
			kind = KindSource
		case kind == KindUnclassified && strings.Contains(strings.ToLower(e.Message), "balance"):
			kind = KindSource
		}
	}
	return &RejectedError{Kind: kind, Detail: strings.Join(messages, ", ")}
}
