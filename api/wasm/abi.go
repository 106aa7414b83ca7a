// Package wasm describes the import surface a guest module links against:
// the JNI table module and the host logging module.
package wasm

// HostModule is the default import module of the JNI table. Each
// implemented table entry is exported under its JNI name, without the
// leading JNIEnv argument.
const HostModule = "jni"

// LogModule is the import module providing log_message.
const LogModule = "host"

// LogLevel is the level argument of log_message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}
