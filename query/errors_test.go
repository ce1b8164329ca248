package query

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestClassifyDeadlineExceeded(t *testing.T) {
	qe := Classify(context.DeadlineExceeded)
	if qe.Kind != ErrTimeout {
		t.Fatalf("Kind = %v, want %v", qe.Kind, ErrTimeout)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	serverErr := Classify(&HTTPStatusError{StatusCode: 503})
	if serverErr.Kind != ErrServer {
		t.Fatalf("503 Kind = %v, want %v", serverErr.Kind, ErrServer)
	}
	if serverErr.StatusCode != 503 {
		t.Fatalf("StatusCode = %d, want 503", serverErr.StatusCode)
	}

	clientErr := Classify(&HTTPStatusError{StatusCode: 404})
	if clientErr.Kind != ErrUnknown {
		t.Fatalf("404 Kind = %v, want %v", clientErr.Kind, ErrUnknown)
	}
}

func TestClassifyJSONErrorsAreParsing(t *testing.T) {
	var target int
	err := json.Unmarshal([]byte("not json"), &target)
	if err == nil {
		t.Fatal("expected a json error")
	}
	qe := Classify(err)
	if qe.Kind != ErrParsing {
		t.Fatalf("Kind = %v, want %v", qe.Kind, ErrParsing)
	}
}

func TestClassifyPassesThroughExistingQueryError(t *testing.T) {
	original := NewNetworkError(errors.New("boom"))
	qe := Classify(original)
	if qe != original {
		t.Fatal("Classify should not rewrap an existing *QueryError")
	}
}

func TestClassifyUnknownFallback(t *testing.T) {
	qe := Classify(errors.New("something else"))
	if qe.Kind != ErrUnknown {
		t.Fatalf("Kind = %v, want %v", qe.Kind, ErrUnknown)
	}
}

func TestRetryPolicyBoundedness(t *testing.T) {
	p := DefaultRetryPolicy()

	// network/timeout retried up to 3 times: attempts 1,2,3 retry, 4 does not.
	for attempt := 1; attempt <= 3; attempt++ {
		if !p.ShouldRetry(ErrNetwork, attempt) {
			t.Fatalf("attempt %d should retry for network errors", attempt)
		}
	}
	if p.ShouldRetry(ErrNetwork, 4) {
		t.Fatal("attempt 4 should not retry for network errors (bounded at 3)")
	}

	if !p.ShouldRetry(ErrServer, 1) {
		t.Fatal("server errors should retry once")
	}
	if p.ShouldRetry(ErrServer, 2) {
		t.Fatal("server errors should not retry a second time")
	}

	if p.ShouldRetry(ErrParsing, 1) {
		t.Fatal("parsing errors should never retry")
	}
	if p.ShouldRetry(ErrUnknown, 1) {
		t.Fatal("unknown errors should never retry")
	}
}

func TestBackoffIsBoundedAndNonNegative(t *testing.T) {
	p := DefaultRetryPolicy()
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Backoff(attempt)
		if d < 0 {
			t.Fatalf("Backoff(%d) = %v, must never be negative", attempt, d)
		}
		// capped at MaxDelay plus jitter spread on either side.
		maxWithJitter := p.MaxDelay + time.Duration(float64(p.MaxDelay)*p.Jitter)
		if d > maxWithJitter {
			t.Fatalf("Backoff(%d) = %v, exceeds jittered cap %v", attempt, d, maxWithJitter)
		}
	}
}
