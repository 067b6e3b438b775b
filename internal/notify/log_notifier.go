package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/wenliu-dev/coursehub/internal/actorctx"
)

// LogNotifier stands in for a real mail provider and just writes a log line.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendEnrollmentConfirmation(ctx context.Context, in EnrollmentConfirmationInput) error {
	// Optional: simulate slow provider
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	actor, _ := actorctx.UserIDFrom(ctx)

	n.log.InfoContext(ctx, "notification.enrollment_confirmation",
		"email", in.Email,
		"course_id", in.CourseID,
		"title", in.Title,
		"actor_id", actor,
	)
	return nil
}
