package middlewares

type ctxKey string

const (
	CtxRequestID ctxKey = "requestID"

	// KeyUserID carries the acting user on context.Context, not on the gin
	// context. actorctx wraps it for packages below the HTTP layer.
	KeyUserID ctxKey = "user_id"
)
