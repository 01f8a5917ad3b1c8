package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"rwaledger/pkg/errors"
)

const maxBreadcrumbs = 50

// Tracker reports ledger failures to Sentry, grouped by stable error code
type Tracker struct {
	hub *sentry.Hub
}

// New initializes the Sentry client
func New(dsn, environment, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:            dsn,
		Environment:    environment,
		Release:        release,
		MaxBreadcrumbs: maxBreadcrumbs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sentry init")
	}
	return &Tracker{hub: sentry.CurrentHub()}, nil
}

// CaptureError sends err tagged with its kind and code. Validation and
// not-found errors are caller mistakes and are dropped.
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	if err == nil || !reportable(errors.KindOf(err)) {
		return nil
	}
	code := errors.CodeOf(err)

	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetTag("error_kind", string(errors.KindOf(err)))
		scope.SetTag("error_code", code)
		scope.SetFingerprint([]string{code})
		if actor, ok := errors.ActorFrom(ctx); ok {
			scope.SetUser(sentry.User{ID: actor})
		}
	})
	hub.CaptureException(err)
	return nil
}

// Breadcrumb attaches a ledger step to later captures
func (t *Tracker) Breadcrumb(_ context.Context, category, message string, data map[string]interface{}) {
	t.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Data:      data,
		Timestamp: time.Now(),
	}, nil)
}

// Flush waits for queued events until ctx's deadline, or two seconds
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !t.hub.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

func reportable(k errors.Kind) bool {
	switch k {
	case errors.KindValidation, errors.KindNotFound:
		return false
	default:
		return true
	}
}

var _ errors.Tracker = (*Tracker)(nil)
