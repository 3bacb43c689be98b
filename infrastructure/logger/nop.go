package logger

// nopLogger discards everything. Used by tests and by components built
// without a logger.
type nopLogger struct{}

// NewNop creates a no-op logger.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}
func (nopLogger) Fatal(string, ...Field) {}

func (l nopLogger) With(...Field) Logger { return l }

func (nopLogger) Sync() error { return nil }

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNop()
	}
	return l
}
