package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

func TestHandleMessagePassesReplyThrough(t *testing.T) {
	reply := handleMessage(context.Background(), func(_ context.Context, data []byte) ([]byte, error) {
		return append([]byte("echo:"), data...), nil
	}, []byte("payload"))
	if string(reply) != "echo:payload" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestHandleMessageEncodesHandlerError(t *testing.T) {
	reply := handleMessage(context.Background(), func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("pipeline exploded")
	}, []byte("{}"))

	var decoded errorReply
	if err := json.Unmarshal(reply, &decoded); err != nil {
		t.Fatalf("reply is not json: %v", err)
	}
	if decoded.Success || decoded.Error != "pipeline exploded" {
		t.Fatalf("unexpected reply %+v", decoded)
	}
}

func TestRequestPolicyNeverRepeatsTimedOutRequests(t *testing.T) {
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})

	cases := []struct {
		name     string
		err      error
		attempts int
	}{
		{"timeout", nats.ErrTimeout, 1},
		{"deadline", context.DeadlineExceeded, 1},
		{"no responders", nats.ErrNoResponders, 3},
		{"disconnected", nats.ErrDisconnected, 3},
		{"bad subject", nats.ErrBadSubject, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			_ = exec.Do(context.Background(), "nats_request_"+tc.name, requestPolicy, func(context.Context) error {
				attempts++
				return fmt.Errorf("nats request: %w", tc.err)
			})
			if attempts != tc.attempts {
				t.Fatalf("expected %d attempts, got %d", tc.attempts, attempts)
			}
		})
	}
}

func TestRequestErrorKinds(t *testing.T) {
	err := requestError(fmt.Errorf("nats request: %w", nats.ErrNoResponders))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("no responders means workers are restarting, got %v", err)
	}
	err = requestError(fmt.Errorf("nats request: %w", nats.ErrNoServers))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	err = requestError(fmt.Errorf("nats request: %w", nats.ErrTimeout))
	if !errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("timeout must surface as a deadline, got %v", err)
	}
	err = requestError(errors.New("invalid subject"))
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
