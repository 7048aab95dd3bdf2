package domovoy

import "log/slog"

// Logger defines the interface for runtime logging. All subsystems log
// structured key-value pairs through it:
//
//	logger.Info("app initialized", "app", "porch-light", "unit", "apps/lighting")
//
// The variadic key-value form is compatible with log/slog and with most
// structured logging libraries, so implementing applications can control
// how runtime logs appear.
type Logger interface {
	// Info logs normal runtime events: app registration, reload passes,
	// connector state changes.
	Info(msg string, args ...any)

	// Error logs failures that are contained by a fault boundary and do
	// not stop the process: app init failures, callback panics, reload
	// errors.
	Error(msg string, args ...any)

	// Warn logs unusual but non-fatal conditions.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics: dropped stale cache updates,
	// ignored watcher events, dispatch traces.
	Debug(msg string, args ...any)
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	L *slog.Logger
}

func (s *SlogLogger) Info(msg string, args ...any)  { s.L.Info(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...any) { s.L.Error(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...any)  { s.L.Warn(msg, args...) }
func (s *SlogLogger) Debug(msg string, args ...any) { s.L.Debug(msg, args...) }

// appLogger scopes a Logger to one app by appending its identity to every
// record. Apps receive one through their Runtime.
type appLogger struct {
	base Logger
	app  string
}

// NewAppLogger returns a Logger that tags every record with the app name.
func NewAppLogger(base Logger, app string) Logger {
	return &appLogger{base: base, app: app}
}

func (l *appLogger) Info(msg string, args ...any) {
	l.base.Info(msg, append(args, "app", l.app)...)
}

func (l *appLogger) Error(msg string, args ...any) {
	l.base.Error(msg, append(args, "app", l.app)...)
}

func (l *appLogger) Warn(msg string, args ...any) {
	l.base.Warn(msg, append(args, "app", l.app)...)
}

func (l *appLogger) Debug(msg string, args ...any) {
	l.base.Debug(msg, append(args, "app", l.app)...)
}
