package host

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/internal/classpath"
	"github.com/woxQAQ/jniproxy/internal/config"
	"github.com/woxQAQ/jniproxy/internal/dispatch"
	"github.com/woxQAQ/jniproxy/internal/member"
	"github.com/woxQAQ/jniproxy/internal/sandbox"
	"github.com/woxQAQ/jniproxy/internal/wasm"
)

// Option customizes a Host before its classes are installed.
type Option func(*Host)

// WithFunc registers a method implementation for manifests to reference as
// func:<name>.
func WithFunc(name string, fn sandbox.MethodFunc) Option {
	return func(h *Host) {
		h.vm.RegisterFunc(name, fn)
	}
}

// Host wires the class bundles, the sandbox VM, the shared member cache and
// the wasm runtime exporting the JNI table.
type Host struct {
	cfg    *config.Config
	base   *zap.Logger
	logger *zap.Logger

	vm        *sandbox.VM
	cache     *member.Cache
	table     *dispatch.Table
	runtime   *wasm.Runtime
	hostFuncs *wasm.HostFunctions
	bundles   *classpath.Manager
}

// New builds a Host from configuration: it loads every bundle on the class
// paths and installs their classes.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Host, error) {
	runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
		MemoryPages:      cfg.Wasm.MemoryPages,
		DebugEnabled:     cfg.Wasm.Debug,
		CacheDir:         cfg.Wasm.CacheDir,
		MaxInstances:     cfg.Wasm.MaxInstances,
		ExecutionTimeout: cfg.Wasm.ExecutionTimeout,
		WASI:             cfg.Wasm.WASI,
		HostModule:       cfg.Wasm.ModuleName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	table := dispatch.Default()
	hostFuncs := wasm.NewHostFunctions(table, logger, cfg.Wasm.Debug)

	h := &Host{
		cfg:       cfg,
		base:      logger,
		logger:    logger.With(zap.String("component", "host")),
		vm:        sandbox.NewVM(cfg.JNIVersion, logger),
		cache:     member.NewCache(cfg.Cache.InitialCapacity, logger),
		table:     table,
		runtime:   runtime,
		hostFuncs: hostFuncs,
		bundles:   classpath.NewManager(cfg.ClassPaths, runtime, hostFuncs, logger),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.bundles.LoadAll(ctx); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to load class bundles: %w", err)
	}
	classes, err := h.bundles.Install(h.vm)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to install classes: %w", err)
	}

	h.logger.Info("Host initialized",
		zap.Int("bundles", h.bundles.Registry().Count()),
		zap.Int("classes", classes),
		zap.Int("table_slots", table.Len()),
		zap.String("jni_module", cfg.Wasm.ModuleName),
	)
	return h, nil
}

// VM returns the backing environment.
func (h *Host) VM() *sandbox.VM {
	return h.vm
}

// Table returns the exported function table.
func (h *Host) Table() *dispatch.Table {
	return h.table
}

// Bundles returns the class bundle manager.
func (h *Host) Bundles() *classpath.Manager {
	return h.bundles
}

// NewEnv returns a fresh per-caller environment over the shared VM and
// member cache.
func (h *Host) NewEnv() *dispatch.Env {
	return dispatch.NewEnv(h.vm, h.cache, h.base)
}

// Run instantiates the guest of the named bundle, calls its entry export
// and closes the instance.
func (h *Host) Run(ctx context.Context, bundleName string) error {
	bundle, err := h.bundles.GetBundle(bundleName)
	if err != nil {
		return err
	}
	entry := bundle.Entry()
	if entry == "" {
		entry = h.cfg.Wasm.Entry
	}

	// Each run raises exceptions on its own thread of the shared VM.
	ctx = sandbox.WithThread(ctx)

	inst, err := h.bundles.Instantiate(ctx, bundleName, h.NewEnv())
	if err != nil {
		return err
	}
	defer func() {
		if err := inst.Close(ctx); err != nil {
			h.logger.Warn("Failed to close instance", zap.String("instance_id", inst.ID), zap.Error(err))
		}
	}()

	h.logger.Info("Running guest",
		zap.String("bundle", bundleName),
		zap.String("entry", entry),
		zap.String("instance_id", inst.ID),
	)
	if _, err := inst.Call(ctx, entry); err != nil {
		return err
	}
	if ref, _ := h.vm.ExceptionOccurred(ctx); !ref.IsNull() {
		h.logger.Warn("Guest returned with a pending exception", zap.String("bundle", bundleName))
		_ = h.vm.ExceptionDescribe(ctx)
	}
	return nil
}

// RunAll runs every guest in bundle name order and stops at the first
// failure.
func (h *Host) RunAll(ctx context.Context) error {
	guests := h.bundles.Guests()
	if len(guests) == 0 {
		h.logger.Warn("No guest modules to run", zap.Strings("class_paths", h.cfg.ClassPaths))
		return nil
	}
	for _, bundle := range guests {
		if err := h.Run(ctx, bundle.Name()); err != nil {
			return fmt.Errorf("bundle %s: %w", bundle.Name(), err)
		}
	}
	return nil
}

// Close shuts down the runtime and every instance.
func (h *Host) Close(ctx context.Context) error {
	h.logger.Info("Shutting down host")
	if err := h.bundles.Shutdown(ctx); err != nil {
		return err
	}
	h.logger.Info("Host shutdown complete")
	return nil
}
