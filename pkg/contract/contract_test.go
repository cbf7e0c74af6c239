package contract

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
)

// applyModule exports apply(i64, i64, i64) with an empty body.
var applyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x03, 0x7e, 0x7e, 0x7e, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x09, 0x01, 0x05, 'a', 'p', 'p', 'l', 'y', 0x00, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

// noExportModule declares the same function but exports nothing.
var noExportModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x03, 0x7e, 0x7e, 0x7e, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

const widgetABI = `{
	"version": "eosio::abi/1.1",
	"structs": [{"name": "create", "base": "", "fields": [{"name": "issuer", "type": "name"}]}],
	"actions": [{"name": "create", "type": "create", "ricardian_contract": ""}],
	"tables": [{"name": "stat", "index_type": "i64", "key_names": [], "key_types": [], "type": "create"}]
}`

func writePackage(t *testing.T, root, name string, wasm []byte, abiJSON string) {
	t.Helper()
	wasmPath, abiPath := Paths(root, name)
	if err := os.MkdirAll(filepath.Dir(wasmPath), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(wasmPath, wasm, 0644); err != nil {
		t.Fatalf("write wasm: %v", err)
	}
	if err := os.WriteFile(abiPath, []byte(abiJSON), 0644); err != nil {
		t.Fatalf("write abi: %v", err)
	}
}

func TestPaths(t *testing.T) {
	wasmPath, abiPath := Paths("/contracts", "widget")
	if wasmPath != filepath.Join("/contracts", "widget", "build", "widget", "widget.wasm") {
		t.Errorf("unexpected wasm path %s", wasmPath)
	}
	if abiPath != filepath.Join("/contracts", "widget", "build", "widget", "widget.abi") {
		t.Errorf("unexpected abi path %s", abiPath)
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "widget", applyModule, widgetABI)

	pkg, err := Load(root, "widget")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pkg.CodeHex() != hex.EncodeToString(applyModule) {
		t.Error("CodeHex does not match the wasm file")
	}

	abiHex, err := pkg.ABIHex()
	if err != nil {
		t.Fatalf("ABIHex: %v", err)
	}
	raw, _ := hex.DecodeString(abiHex)
	decoded, err := abi.DecodeABI(raw)
	if err != nil {
		t.Fatalf("DecodeABI: %v", err)
	}
	if got := abi.ActionNames(decoded); len(got) != 1 || got[0] != "create" {
		t.Errorf("unexpected actions %v", got)
	}

	schema, err := pkg.Schema()
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if got := abi.TableNames(schema); len(got) != 1 || got[0] != "stat" {
		t.Errorf("unexpected tables %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "broken", applyModule, "{not json")

	tests := map[string]string{
		"missing":   "nothing",
		"bad abi":   "broken",
		"traversal": "../broken",
		"empty":     "",
	}
	for name, pkg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(root, pkg); err == nil {
				t.Fatalf("expected error loading %q", pkg)
			}
		})
	}
	_, err := Load(root, "nothing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the missing file to stay reachable, got %v", err)
	}
	if errors.GetErrorCode(err) != errors.CodeInternal {
		t.Errorf("unexpected code %q", errors.GetErrorCode(err))
	}
	_, err = Load(root, "broken")
	if err == nil || !strings.Contains(err.Error(), "invalid abi file") {
		t.Errorf("expected the abi path in the error, got %v", err)
	}
}

func TestValidator(t *testing.T) {
	ctx := context.Background()
	v := NewValidator(ctx, nil)
	defer v.Close(ctx)

	if err := v.Validate(ctx, applyModule); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	// Second call is served from the hash cache.
	if err := v.Validate(ctx, applyModule); err != nil {
		t.Fatalf("Validate (cached): %v", err)
	}

	err := v.Validate(ctx, noExportModule)
	if err == nil || !strings.Contains(err.Error(), EntryPoint) {
		t.Errorf("expected missing export error, got %v", err)
	}
	if err := v.Validate(ctx, []byte("not wasm")); err == nil {
		t.Error("expected compile error")
	}
	if err := v.Validate(ctx, nil); err == nil {
		t.Error("expected error for empty module")
	}
}
