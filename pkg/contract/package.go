// Package contract loads compiled contract packages from disk and prepares
// them for setcode and setabi.
//
// A package P lives under a contracts root as:
//
//	P/build/P/P.wasm
//	P/build/P/P.abi
package contract

import (
	"encoding/hex"
	"os"
	"path/filepath"

	eos "github.com/eoscanada/eos-go"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
)

// Package is a compiled contract and its ABI.
type Package struct {
	Name     string
	WASMPath string
	ABIPath  string
	WASM     []byte
	// ABIJSON is the ABI file as written by the contract compiler.
	ABIJSON []byte
}

// Paths returns where the wasm and abi files of pkg are expected.
func Paths(root, pkg string) (wasmPath, abiPath string) {
	dir := filepath.Join(root, pkg, "build", pkg)
	return filepath.Join(dir, pkg+".wasm"), filepath.Join(dir, pkg+".abi")
}

// Load reads both files of pkg. The ABI must be valid JSON.
func Load(root, pkg string) (*Package, error) {
	if pkg == "" || filepath.Base(pkg) != pkg {
		return nil, errors.Newf("invalid package name %q", pkg)
	}
	wasmPath, abiPath := Paths(root, pkg)

	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read wasm")
	}
	if len(wasm) == 0 {
		return nil, errors.Newf("wasm file %s is empty", wasmPath)
	}

	abiJSON, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read abi")
	}
	if _, err := abi.ParseABI(abiJSON); err != nil {
		return nil, errors.Wrapf(err, "invalid abi file %s", abiPath)
	}

	return &Package{
		Name:     pkg,
		WASMPath: wasmPath,
		ABIPath:  abiPath,
		WASM:     wasm,
		ABIJSON:  abiJSON,
	}, nil
}

// CodeHex returns the wasm as the hex string setcode expects.
func (p *Package) CodeHex() string {
	return hex.EncodeToString(p.WASM)
}

// ABIHex returns the binary abi_def as the hex string setabi expects. Array
// fields the ABI file leaves out are encoded as empty.
func (p *Package) ABIHex() (string, error) {
	b, err := abi.EncodeABIDef(p.ABIJSON)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Schema parses the ABI file.
func (p *Package) Schema() (*eos.ABI, error) {
	return abi.ParseABI(p.ABIJSON)
}
