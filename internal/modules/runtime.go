package modules

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// Feature is the native implementation behind a module's code unit. It
// runs when the code unit executes and is expected to register the
// module's initializer.
type Feature func(ctx context.Context, reg Registrar) error

// BuiltinRuntime executes code units by running the native feature
// provided for the module. The fetched code unit must be present and
// non-empty; its content is not interpreted.
type BuiltinRuntime struct {
	mu       sync.RWMutex
	features map[Name]Feature
}

// NewBuiltinRuntime creates an empty runtime
func NewBuiltinRuntime() *BuiltinRuntime {
	return &BuiltinRuntime{features: make(map[Name]Feature)}
}

// Provide sets the feature behind a module
func (r *BuiltinRuntime) Provide(name Name, f Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features[name] = f
}

// Execute implements Runtime
func (r *BuiltinRuntime) Execute(ctx context.Context, name Name, code []byte, reg Registrar) (err error) {
	if len(bytes.TrimSpace(code)) == 0 {
		return fmt.Errorf("empty code unit")
	}

	r.mu.RLock()
	f, ok := r.features[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no implementation for module %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("code unit panicked: %v", rec)
		}
	}()
	return f(ctx, reg)
}
