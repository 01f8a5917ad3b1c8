package noop

import (
	"context"
	"sync"

	"rwaledger/pkg/errors"
)

// Capture is one error handed to the tracker
type Capture struct {
	Code  string
	Actor string
	Tags  map[string]string
}

// Tracker keeps captures in memory instead of shipping them anywhere.
// It stands in for Sentry when tracking is disabled.
type Tracker struct {
	mu       sync.Mutex
	captures []Capture
	crumbs   int
}

func New() *Tracker { return &Tracker{} }

func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	if err == nil {
		return nil
	}
	c := Capture{Code: errors.CodeOf(err), Tags: make(map[string]string, len(tags))}
	c.Actor, _ = errors.ActorFrom(ctx)
	for k, v := range tags {
		c.Tags[k] = v
	}

	t.mu.Lock()
	t.captures = append(t.captures, c)
	t.mu.Unlock()
	return nil
}

func (t *Tracker) Breadcrumb(context.Context, string, string, map[string]interface{}) {
	t.mu.Lock()
	t.crumbs++
	t.mu.Unlock()
}

func (t *Tracker) Flush(context.Context) error { return nil }

// Captures returns a copy of everything captured so far
func (t *Tracker) Captures() []Capture {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Capture(nil), t.captures...)
}

// Breadcrumbs returns how many breadcrumbs were recorded
func (t *Tracker) Breadcrumbs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.crumbs
}

var _ errors.Tracker = (*Tracker)(nil)
