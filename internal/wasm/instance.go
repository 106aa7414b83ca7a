package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	guest "github.com/woxQAQ/jniproxy/api/wasm"
	"github.com/woxQAQ/jniproxy/internal/dispatch"
)

// InstanceManager instantiates guests against the JNI host module.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctions

	hostOnce sync.Once
	hostErr  error

	mu sync.Mutex
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctions, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// ModuleName of a module compiled by ModuleLoader.
	ModuleName string

	// InstanceID names the instance; generated when empty.
	InstanceID string

	// Env serves the instance's native calls.
	Env *dispatch.Env
}

// Instance is one instantiated guest bound to a dispatch environment.
type Instance struct {
	module  api.Module
	manager *InstanceManager

	ID        string
	Name      string
	CreatedAt int64

	env     *dispatch.Env
	timeout time.Duration
	closed  atomic.Bool
}

// Instantiate links a compiled guest against the host modules and binds its
// environment. The host modules are instantiated once per runtime.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	if m.runtime.IsClosed() {
		return nil, ErrRuntimeClosed
	}
	if config.Env == nil {
		return nil, fmt.Errorf("instance of %s: no environment", config.ModuleName)
	}

	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if err := m.instantiateHost(ctx); err != nil {
		return nil, err
	}
	if err := m.checkImports(compiled); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return nil, &InstanceLimitError{Limit: limit}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateInstanceID()
	}
	if _, exists := m.runtime.GetInstance(instanceID); exists {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        errors.New("instance ID already in use"),
		}
	}

	m.logger.Info("Instantiating guest",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	// Bind before instantiation so start functions can already call in.
	m.hostFuncs.Bind(instanceID, config.Env)

	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions("_initialize")

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		m.hostFuncs.Unbind(instanceID)
		return nil, &InstantiationError{ModuleName: config.ModuleName, InstanceID: instanceID, Err: err}
	}
	if module.Memory() == nil {
		m.hostFuncs.Unbind(instanceID)
		_ = module.Close(ctx)
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        errors.New("guest defines no memory"),
		}
	}

	instance := &Instance{
		module:    module,
		manager:   m,
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		env:       config.Env,
		timeout:   m.runtime.config.ExecutionTimeout,
	}
	m.runtime.storeInstance(instance)

	m.logger.Info("Guest instantiated",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(module.ExportedFunctionDefinitions())),
	)

	return instance, nil
}

// instantiateHost instantiates the JNI and logging host modules.
func (m *InstanceManager) instantiateHost(ctx context.Context) error {
	m.hostOnce.Do(func() {
		name := m.runtime.hostModuleName()
		jni := m.hostFuncs.Export(m.runtime.runtime.NewHostModuleBuilder(name))
		if _, err := jni.Instantiate(ctx); err != nil {
			m.hostErr = &HostFunctionError{FunctionName: name, Err: err}
			return
		}

		logging := m.hostFuncs.ExportLogging(m.runtime.runtime.NewHostModuleBuilder(guest.LogModule))
		if _, err := logging.Instantiate(ctx); err != nil {
			m.hostErr = &HostFunctionError{FunctionName: guest.LogModule, Err: err}
			return
		}

		m.logger.Info("Host modules instantiated",
			zap.String("jni_module", name),
			zap.String("log_module", guest.LogModule),
		)
	})
	return m.hostErr
}

// checkImports rejects guests importing JNI entries the table does not
// implement, naming every offending import.
func (m *InstanceManager) checkImports(compiled *CompiledModule) error {
	var unresolved []string
	for _, name := range compiled.Imports(m.runtime.hostModuleName()) {
		if e, ok := m.hostFuncs.Table().Lookup(name); !ok || !e.Implemented() {
			unresolved = append(unresolved, name)
		}
	}
	if len(unresolved) > 0 {
		return &UnresolvedImportError{ModuleName: compiled.Name, Imports: unresolved}
	}
	return nil
}

// Env returns the environment serving the instance.
func (i *Instance) Env() *dispatch.Env {
	return i.env
}

// Memory returns the guest memory helper.
func (i *Instance) Memory() *Memory {
	return NewMemory(i.module)
}

// Call invokes an exported guest function, bounded by the runtime's
// execution timeout.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if i.closed.Load() {
		return nil, &InstanceClosedError{InstanceID: i.ID}
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	res, err := fn.Call(ctx, params...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Duration: i.timeout}
		}
		return nil, &ExecutionError{InstanceID: i.ID, FunctionName: name, Err: err}
	}
	return res, nil
}

// Close closes the guest and unbinds its environment. It is idempotent.
func (i *Instance) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	i.manager.hostFuncs.Unbind(i.ID)
	i.manager.runtime.deleteInstance(i.ID)
	if pinned := i.env.Pinned(); pinned > 0 {
		i.manager.logger.Warn("Closing instance with unreleased string chars",
			zap.String("instance_id", i.ID),
			zap.Int("pinned", pinned),
		)
	}
	return i.module.Close(ctx)
}

var instanceSeq atomic.Uint64

// generateInstanceID returns a process-unique instance name.
func generateInstanceID() string {
	return fmt.Sprintf("inst-%d-%d", time.Now().UnixNano(), instanceSeq.Add(1))
}
