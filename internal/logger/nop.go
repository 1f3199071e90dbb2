package logger

// NoOpLogger discards every entry.
type NoOpLogger struct{}

// NewNop returns a NoOpLogger.
func NewNop() Logger { return NoOpLogger{} }

func (NoOpLogger) Debug(string, ...Field) {}
func (NoOpLogger) Info(string, ...Field)  {}
func (NoOpLogger) Warn(string, ...Field)  {}
func (NoOpLogger) Error(string, ...Field) {}
func (NoOpLogger) With(...Field) Logger   { return NoOpLogger{} }
func (NoOpLogger) Sync() error            { return nil }
