package notify

import "context"

type EnrollmentConfirmationInput struct {
	Email    string
	CourseID string
	Title    string
}

// Notifier sends the enrollment confirmation. Delivery failures never fail
// the enrollment itself; the handler logs and moves on.
type Notifier interface {
	SendEnrollmentConfirmation(ctx context.Context, input EnrollmentConfirmationInput) error
}
