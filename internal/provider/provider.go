// Package provider implements the model clients that personalities speak
// through. Every call returns a tagged Completion instead of an error so the
// caller can tell a timeout from any other failure.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Outcome tags a Completion.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTimeout
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "failure"
	}
}

// Completer is the interface for model API clients.
type Completer interface {
	// Complete sends one request and returns its tagged result.
	Complete(ctx context.Context, req CompletionRequest) Completion
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// Message is one turn of chat history. Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest contains the parameters for one model call.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	// Temperature is sent as given, zero included. Nil leaves the provider default.
	Temperature *float64
}

// Completion is the result of a model call. Text is set only when Outcome is
// OutcomeOK; Err is set otherwise.
type Completion struct {
	Outcome Outcome
	Text    string
	Err     error
}

// OK returns a successful Completion.
func OK(text string) Completion {
	return Completion{Outcome: OutcomeOK, Text: text}
}

// Failed classifies err into a timeout or failure Completion.
func Failed(err error) Completion {
	if IsTimeout(err) {
		return Completion{Outcome: OutcomeTimeout, Err: err}
	}
	return Completion{Outcome: OutcomeFailure, Err: err}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Timeouts bounds a single model call.
type Timeouts struct {
	Connect time.Duration // Dial and TLS handshake.
	Read    time.Duration // Time to response headers.
}

// DefaultTimeouts returns the 2s connect and 4s read budget.
func DefaultTimeouts() Timeouts {
	return Timeouts{Connect: 2 * time.Second, Read: 4 * time.Second}
}

// Call is the overall per-call deadline, which also bounds reading the body.
func (t Timeouts) Call() time.Duration {
	return t.Connect + 2*t.Read
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Connect <= 0 {
		t.Connect = d.Connect
	}
	if t.Read <= 0 {
		t.Read = d.Read
	}
	return t
}

// newHTTPClient returns a client whose transport enforces t.
func newHTTPClient(t Timeouts) *http.Client {
	dialer := &net.Dialer{Timeout: t.Connect, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   t.Connect,
			ResponseHeaderTimeout: t.Read,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		Timeout: t.Call(),
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}
