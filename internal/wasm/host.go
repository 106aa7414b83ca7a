package wasm

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	guest "github.com/woxQAQ/jniproxy/api/wasm"
	"github.com/woxQAQ/jniproxy/internal/dispatch"
)

// HostFunctions exports the JNI function table to guests. A guest calls an
// entry with no JNIEnv argument; the environment is the one bound to the
// calling instance's module name.
type HostFunctions struct {
	table  *dispatch.Table
	logger *zap.Logger
	debug  bool

	mu   sync.RWMutex
	envs map[string]*dispatch.Env
}

// NewHostFunctions creates the host side of the JNI import module.
func NewHostFunctions(table *dispatch.Table, logger *zap.Logger, debug bool) *HostFunctions {
	return &HostFunctions{
		table:  table,
		logger: logger.With(zap.String("component", "wasm-host")),
		debug:  debug,
		envs:   make(map[string]*dispatch.Env),
	}
}

// Table returns the exported table.
func (h *HostFunctions) Table() *dispatch.Table {
	return h.table
}

// Bind attaches env to the guest instance named instanceID.
func (h *HostFunctions) Bind(instanceID string, env *dispatch.Env) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envs[instanceID] = env
}

// Unbind detaches the environment of instanceID.
func (h *HostFunctions) Unbind(instanceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.envs, instanceID)
}

// Env returns the environment bound to instanceID.
func (h *HostFunctions) Env(instanceID string) (*dispatch.Env, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	env, ok := h.envs[instanceID]
	return env, ok
}

// Export registers every implemented entry of the table on builder under
// its JNI name. Reserved and layout-only slots are not exported.
func (h *HostFunctions) Export(builder wazero.HostModuleBuilder) wazero.HostModuleBuilder {
	h.table.Each(func(e *dispatch.Entry) bool {
		if !e.Implemented() {
			return true
		}
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(h.entryFunc(e), e.Params, e.Results).
			WithName(e.Name).
			Export(e.Name)
		return true
	})
	return builder
}

// entryFunc adapts an entry handler to wazero's stack calling convention.
func (h *HostFunctions) entryFunc(e *dispatch.Entry) api.GoModuleFunc {
	hasResult := len(e.Results) > 0
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		env, ok := h.Env(mod.Name())
		if !ok {
			h.logger.Warn("Native call from unbound instance",
				zap.String("instance_id", mod.Name()),
				zap.String("entry", e.Name),
			)
			if hasResult {
				stack[0] = 0
			}
			return
		}

		f := &frame{stack: stack, mem: NewMemory(mod)}
		word := e.Handler(ctx, env, f)

		if h.debug {
			h.logger.Debug("Native call",
				zap.String("instance_id", mod.Name()),
				zap.String("entry", e.Name),
				zap.Int("slot", e.Index),
				zap.Uint64("result", word),
			)
		}
		if hasResult {
			stack[0] = word
		}
	}
}

// ExportLogging registers log_message on builder.
func (h *HostFunctions) ExportLogging(builder wazero.HostModuleBuilder) wazero.HostModuleBuilder {
	return builder.NewFunctionBuilder().
		WithFunc(h.logMessage).
		WithParameterNames("level", "ptr", "length").
		Export("log_message")
}

// maxLogMessage bounds a NUL-terminated guest log message.
const maxLogMessage = 4 << 10

// logMessage is called by guests to log through the host logger.
// Signature: log_message(level, ptr, length)
// A zero length reads a NUL-terminated message.
func (h *HostFunctions) logMessage(ctx context.Context, mod api.Module, level uint32, ptr uint32, length uint32) {
	mem := NewMemory(mod)
	var (
		msg string
		ok  bool
	)
	if length == 0 {
		msg, ok = mem.ReadString(ptr, maxLogMessage)
	} else {
		var buf []byte
		buf, ok = mem.ReadBytes(ptr, length)
		msg = string(buf)
	}
	if !ok {
		h.logger.Error("Failed to read log message from guest memory",
			zap.String("instance_id", mod.Name()),
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
		return
	}

	logger := h.logger.With(zap.String("instance_id", mod.Name()))
	switch guest.LogLevel(level) {
	case guest.LevelDebug:
		logger.Debug(msg)
	case guest.LevelInfo:
		logger.Info(msg)
	case guest.LevelWarn:
		logger.Warn(msg)
	case guest.LevelError:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}
