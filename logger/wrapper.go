package logger

type LevelWrapper struct {
	Base
}

func WrapLogger(l Base) Logger {
	return &LevelWrapper{l}
}

func (w *LevelWrapper) Debug(msg string, kv ...any) {
	w.Log(DebugLevel, msg, kv...)
}

func (w *LevelWrapper) Info(msg string, kv ...any) {
	w.Log(InfoLevel, msg, kv...)
}

func (w *LevelWrapper) Warn(msg string, kv ...any) {
	w.Log(WarnLevel, msg, kv...)
}

func (w *LevelWrapper) Error(msg string, kv ...any) {
	w.Log(ErrorLevel, msg, kv...)
}

// With returns a logger that prepends kv to every entry.
func (w *LevelWrapper) With(kv ...any) Logger {
	if len(kv) == 0 {
		return w
	}

	return WrapLogger(&fieldsBase{Base: w.Base, fields: kv})
}

type fieldsBase struct {
	Base
	fields []any
}

func (f *fieldsBase) Log(level LogLevel, msg string, kv ...any) {
	merged := make([]any, 0, len(f.fields)+len(kv))
	merged = append(merged, f.fields...)
	merged = append(merged, kv...)
	f.Base.Log(level, msg, merged...)
}
