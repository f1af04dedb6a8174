package apiclient

import (
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeOK},
		{201, OutcomeOK},
		{204, OutcomeOK},
		{400, OutcomeFatal},
		{401, OutcomeFatal},
		{403, OutcomeFatal},
		{404, OutcomeFatal},
		{422, OutcomeFatal},
		{408, OutcomeRetry},
		{429, OutcomeRetry},
		{500, OutcomeRetry},
		{503, OutcomeRetry},
	}
	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		base    time.Duration
		want    time.Duration
	}{
		{0, time.Second, time.Second},
		{1, time.Second, 2 * time.Second},
		{3, time.Second, 8 * time.Second},
		{10, time.Second, maxRetryDelay},
		{2, 0, 0},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.attempt, tt.base); got != tt.want {
			t.Errorf("CalculateBackoff(%d, %v) = %v, want %v", tt.attempt, tt.base, got, tt.want)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
		{"3600", maxRetryDelay},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.value != "" {
			h.Set("Retry-After", tt.value)
		}
		if got := retryAfter(h); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
