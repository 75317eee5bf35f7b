package webmod

// argsLogger prepends fixed key/value pairs to every log call.
type argsLogger struct {
	inner Logger
	args  []any
}

// WithLogArgs returns a Logger that adds args to every entry written
// through it, e.g. WithLogArgs(l, "component", "pipeline").
func WithLogArgs(inner Logger, args ...any) Logger {
	if inner == nil {
		inner = NopLogger{}
	}
	if len(args) == 0 {
		return inner
	}
	if al, ok := inner.(*argsLogger); ok {
		combined := make([]any, 0, len(al.args)+len(args))
		combined = append(combined, al.args...)
		combined = append(combined, args...)
		return &argsLogger{inner: al.inner, args: combined}
	}
	return &argsLogger{inner: inner, args: append([]any(nil), args...)}
}

func (l *argsLogger) combine(args []any) []any {
	out := make([]any, 0, len(l.args)+len(args))
	out = append(out, l.args...)
	return append(out, args...)
}

func (l *argsLogger) Info(msg string, args ...any)  { l.inner.Info(msg, l.combine(args)...) }
func (l *argsLogger) Error(msg string, args ...any) { l.inner.Error(msg, l.combine(args)...) }
func (l *argsLogger) Warn(msg string, args ...any)  { l.inner.Warn(msg, l.combine(args)...) }
func (l *argsLogger) Debug(msg string, args ...any) { l.inner.Debug(msg, l.combine(args)...) }
