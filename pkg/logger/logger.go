package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rwaledger/pkg/errors"
)

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// Logger wraps zap.SugaredLogger and forwards errors to the configured tracker
type Logger struct {
	*zap.SugaredLogger
	tracker errors.Tracker
	fields  map[string]string
}

// Init builds the global logger. env "production" selects JSON output.
func Init(level string, env string) error {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	base, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = &Logger{SugaredLogger: base.Sugar(), fields: map[string]string{}}
	return nil
}

// SetErrorTracker attaches an error tracker to the global logger
func SetErrorTracker(tracker errors.Tracker) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.tracker = tracker
	}
}

// Get returns the global logger, creating a development logger if Init was not called
func Get() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		base, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: base.Sugar(), fields: map[string]string{}}
	}
	return globalLogger
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), fields: map[string]string{}}
}

// With creates a child logger with additional key/value fields.
// String-valued fields are also attached as tags to tracked errors.
func (l *Logger) With(args ...interface{}) *Logger {
	fields := make(map[string]string, len(l.fields)+len(args)/2)
	for k, v := range l.fields {
		fields[k] = v
	}
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			fields[k] = fmt.Sprint(args[i+1])
		}
	}
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		tracker:       l.tracker,
		fields:        fields,
	}
}

// WithTracker returns a copy of l that reports to t
func (l *Logger) WithTracker(t errors.Tracker) *Logger {
	c := *l
	c.tracker = t
	return &c
}

// Step logs a ledger step at info level and leaves a breadcrumb, so a later
// tracked error shows the steps that led to it
func (l *Logger) Step(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
	if l.tracker == nil {
		return
	}
	data := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			data[k] = keysAndValues[i+1]
		}
	}
	l.tracker.Breadcrumb(ctx, l.fields["component"], msg, data)
}

// Component is shorthand for With("component", name)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Errorw logs a structured error and reports it to the tracker
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	if l.tracker == nil {
		return
	}
	err := errors.Wrap(errors.ErrInternal, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok && k == "error" {
			if e, ok := keysAndValues[i+1].(error); ok {
				err = errors.Wrap(e, msg)
			}
		}
	}
	_ = l.tracker.CaptureError(context.Background(), err, l.fields)
}

// ErrorWithContext logs err and sends it to the tracker with extra tags
func (l *Logger) ErrorWithContext(ctx context.Context, err error, tags map[string]string) {
	l.SugaredLogger.Errorw(err.Error(), "error_code", errors.CodeOf(err))
	if l.tracker == nil {
		return
	}
	merged := make(map[string]string, len(l.fields)+len(tags))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	_ = l.tracker.CaptureError(ctx, err, merged)
}

// Convenience functions that use the global logger
func Debugf(template string, args ...interface{}) { Get().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { Get().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { Get().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { Get().Errorf(template, args...) }
func Fatalf(template string, args ...interface{}) { Get().Fatalf(template, args...) }

// Sync flushes any buffered log entries
func Sync() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
