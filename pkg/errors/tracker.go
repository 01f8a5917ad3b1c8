package errors

import "context"

// Tracker receives failures that need an operator's attention
type Tracker interface {
	// CaptureError reports err with tags such as pool_id or settlement_id.
	// The actor stored by WithActor, if any, is attached.
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// Breadcrumb records a ledger step that is attached to later captures
	Breadcrumb(ctx context.Context, category, message string, data map[string]interface{})

	// Flush waits for queued reports, bounded by ctx
	Flush(ctx context.Context) error
}

type actorKey struct{}

// WithActor stores the acting principal for error attribution
func WithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the actor stored by WithActor
func ActorFrom(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	return actor, ok
}
