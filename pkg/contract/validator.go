package contract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// EntryPoint is the export every contract must provide: apply(receiver, code, action).
const EntryPoint = "apply"

// Validator compiles contract modules to catch broken builds before they are
// sent to the ledger. Modules are never instantiated.
type Validator struct {
	runtime wazero.Runtime
	logger  *zap.Logger

	mu        sync.RWMutex
	validated map[string]struct{}
}

// NewValidator creates a validator with its own wazero runtime.
func NewValidator(ctx context.Context, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		runtime:   wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true)),
		logger:    logger,
		validated: make(map[string]struct{}),
	}
}

// Validate checks that wasm compiles and exports apply(i64, i64, i64).
// Results are remembered by content hash.
func (v *Validator) Validate(ctx context.Context, wasm []byte) error {
	if len(wasm) == 0 {
		return fmt.Errorf("WASM bytes cannot be empty")
	}
	sum := sha256.Sum256(wasm)
	key := hex.EncodeToString(sum[:])

	v.mu.RLock()
	_, ok := v.validated[key]
	v.mu.RUnlock()
	if ok {
		return nil
	}

	compiled, err := v.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("failed to compile WASM module: %w", err)
	}
	defer func() {
		if err := compiled.Close(ctx); err != nil {
			v.logger.Warn("Failed to close module", zap.String("sha256", key), zap.Error(err))
		}
	}()

	fn, ok := compiled.ExportedFunctions()[EntryPoint]
	if !ok {
		return fmt.Errorf("module does not export %q", EntryPoint)
	}
	params := fn.ParamTypes()
	if len(params) != 3 || params[0] != api.ValueTypeI64 || params[1] != api.ValueTypeI64 || params[2] != api.ValueTypeI64 {
		return fmt.Errorf("%s must take (i64, i64, i64), got %d params", EntryPoint, len(params))
	}

	v.mu.Lock()
	v.validated[key] = struct{}{}
	v.mu.Unlock()

	v.logger.Debug("Module validated",
		zap.String("sha256", key),
		zap.Int("size_bytes", len(wasm)),
	)
	return nil
}

// Close releases the runtime.
func (v *Validator) Close(ctx context.Context) error {
	return v.runtime.Close(ctx)
}
