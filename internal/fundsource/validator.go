// Package fundsource decides whether a bank record is eligible to move
// money: a well-formed funding-source handle and an owner identifier that
// normalizes cleanly. The checks are pure and run for both sides before
// any rail call, so a doomed transfer never pays for the external trip.
package fundsource

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/punchamoorthee/railbridge/internal/domain"
)

// Sides reported in validation failures.
const (
	SideRequest  = "request"
	SideSender   = "sender"
	SideReceiver = "receiver"
)

// fundingSourcesSegment is the rail's funding-source namespace marker.
// A handle outside that namespace points at some other rail resource and
// must never be used as a transfer endpoint.
const fundingSourcesSegment = "funding-sources"

// ValidationError describes which side of the transfer failed which check.
type ValidationError struct {
	Side   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Side, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks transfer eligibility, failing fast on the first
// violation. The returned error carries the failing side and reason.
func Validate(side string, rec *domain.BankRecord) error {
	if rec == nil {
		return &ValidationError{Side: side, Reason: "bank record missing"}
	}
	if rec.FundingSourceURL == "" {
		return &ValidationError{Side: side, Reason: "funding source handle missing"}
	}
	u, err := url.Parse(rec.FundingSourceURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Side: side, Reason: "funding source handle is not an absolute http(s) URL"}
	}
	if !containsSegment(u.Path, fundingSourcesSegment) {
		return &ValidationError{Side: side, Reason: "handle is outside the funding-source namespace"}
	}
	if _, err := rec.Owner.Normalize(); err != nil {
		return &ValidationError{Side: side, Reason: fmt.Sprintf("owner identifier invalid: %v", err)}
	}
	return nil
}

func containsSegment(path, segment string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
