package actorctx

import (
	"context"

	"github.com/wenliu-dev/coursehub/internal/http/middlewares"
)

// The verified requester id crosses from the gin layer into plain
// context.Context so repos and notifiers can log who acted.

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, middlewares.KeyUserID, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(middlewares.KeyUserID).(string)

	return v, ok && v != ""
}
