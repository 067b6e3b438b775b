package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedNotifier struct {
	errs  []error
	calls int
}

func (s *scriptedNotifier) SendEnrollmentConfirmation(ctx context.Context, input EnrollmentConfirmationInput) error {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) {
		return s.errs[s.calls]
	}
	return nil
}

func sampleInput() EnrollmentConfirmationInput {
	return EnrollmentConfirmationInput{
		Email:    "student@x.com",
		CourseID: "c1",
		Title:    "Intro to Go",
	}
}

func TestProtectedNotifierOpensAfterThreshold(t *testing.T) {
	boom := errors.New("provider down")
	inner := &scriptedNotifier{errs: []error{boom, boom, boom, boom}}

	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{
		FailureThreshold: 3,
		Cooldown:         time.Hour,
	})

	for i := 0; i < 3; i++ {
		if err := n.SendEnrollmentConfirmation(context.Background(), sampleInput()); !errors.Is(err, boom) {
			t.Fatalf("call %d: got %v, want provider error", i+1, err)
		}
	}

	// circuit is now open; the inner notifier must not be called again
	err := n.SendEnrollmentConfirmation(context.Background(), sampleInput())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
	if inner.calls != 3 {
		t.Fatalf("inner notifier called %d times, want 3", inner.calls)
	}
}

func TestProtectedNotifierHalfOpenProbe(t *testing.T) {
	boom := errors.New("provider down")

	t.Run("successful probe closes the circuit", func(t *testing.T) {
		inner := &scriptedNotifier{errs: []error{boom, boom}}

		n := NewProtectedNotifier(inner, ProtectedNotifierConfig{
			FailureThreshold: 2,
			Cooldown:         10 * time.Millisecond,
		})

		for i := 0; i < 2; i++ {
			_ = n.SendEnrollmentConfirmation(context.Background(), sampleInput())
		}
		if err := n.SendEnrollmentConfirmation(context.Background(), sampleInput()); !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("circuit not open: %v", err)
		}

		time.Sleep(15 * time.Millisecond)

		// probe succeeds (script exhausted), circuit closes
		if err := n.SendEnrollmentConfirmation(context.Background(), sampleInput()); err != nil {
			t.Fatalf("half-open probe failed: %v", err)
		}
		if err := n.SendEnrollmentConfirmation(context.Background(), sampleInput()); err != nil {
			t.Fatalf("circuit did not close after successful probe: %v", err)
		}
	})

	t.Run("failed probe reopens immediately", func(t *testing.T) {
		inner := &scriptedNotifier{errs: []error{boom, boom, boom}}

		n := NewProtectedNotifier(inner, ProtectedNotifierConfig{
			FailureThreshold: 2,
			Cooldown:         10 * time.Millisecond,
		})

		for i := 0; i < 2; i++ {
			_ = n.SendEnrollmentConfirmation(context.Background(), sampleInput())
		}

		time.Sleep(15 * time.Millisecond)

		if err := n.SendEnrollmentConfirmation(context.Background(), sampleInput()); !errors.Is(err, boom) {
			t.Fatalf("probe should reach the provider: %v", err)
		}

		// probe failed, circuit reopens without waiting for the threshold
		if err := n.SendEnrollmentConfirmation(context.Background(), sampleInput()); !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("got %v, want ErrCircuitOpen after failed probe", err)
		}
	})
}

func TestProtectedNotifierSuccessResetsFailures(t *testing.T) {
	boom := errors.New("provider down")
	inner := &scriptedNotifier{errs: []error{boom, nil, boom, boom}}

	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{
		FailureThreshold: 3,
		Cooldown:         time.Hour,
	})

	// failure, success, failure, failure: never three in a row
	for i := 0; i < 4; i++ {
		err := n.SendEnrollmentConfirmation(context.Background(), sampleInput())
		if errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d: circuit opened without consecutive failures", i+1)
		}
	}
}
