package harness

import (
	"context"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/constants"
	"github.com/DeBrosOfficial/ledgerharness/pkg/contract"
	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
	"github.com/DeBrosOfficial/ledgerharness/pkg/logging"
)

// Deployment steps reported in DeploymentError.Step.
const (
	StepLoad     = "load"
	StepValidate = "validate"
	StepEncode   = "encode_abi"
	StepResolve  = "resolve"
	StepSetCode  = "setcode"
	StepSetABI   = "setabi"
	StepRefresh  = "refresh_abi"
)

type setCodeData struct {
	Account   string `json:"account"`
	VMType    uint8  `json:"vmtype"`
	VMVersion uint8  `json:"vmversion"`
	Code      string `json:"code"`
}

type setABIData struct {
	Account string `json:"account"`
	ABI     string `json:"abi"`
}

// DeployContract installs the package pkg found under the contracts root on
// account. Code and ABI go out as two transactions through the system
// account's setcode and setabi; if setabi fails the code stays deployed.
// Any failure is a DeploymentError whose cause keeps the ledger's reason.
// On success the account's binding is rebuilt from the new ABI.
func (b *Blockchain) DeployContract(ctx context.Context, account, pkg string) (*Account, error) {
	start := b.now()
	fail := func(step string, err error) (*Account, error) {
		b.logger.ComponentWarn(logging.ComponentContract, "Deployment failed",
			zap.String("account", account),
			zap.String("package", pkg),
			zap.String("step", step),
			zap.Error(err),
		)
		return nil, errors.NewDeploymentError(account, pkg, step, err)
	}

	p, err := contract.Load(b.cfg.Contracts.Root, pkg)
	if err != nil {
		return fail(StepLoad, err)
	}
	if err := b.validator.Validate(ctx, p.WASM); err != nil {
		return fail(StepValidate, err)
	}
	abiHex, err := p.ABIHex()
	if err != nil {
		return fail(StepEncode, err)
	}

	system, err := b.ResolveAccount(ctx, b.cfg.Chain.SystemAccount)
	if err != nil {
		return fail(StepResolve, err)
	}
	target, err := b.ResolveAccount(ctx, account)
	if err != nil {
		return fail(StepResolve, err)
	}

	auth := abi.Auth(account, constants.DefaultPermission)
	if _, err := system.Invoke(ctx, "setcode", setCodeData{
		Account:   account,
		VMType:    0,
		VMVersion: 0,
		Code:      p.CodeHex(),
	}, auth); err != nil {
		return fail(StepSetCode, err)
	}
	if _, err := system.Invoke(ctx, "setabi", setABIData{
		Account: account,
		ABI:     abiHex,
	}, auth); err != nil {
		return fail(StepSetABI, err)
	}

	resp, err := b.client.GetABI(ctx, account)
	if err != nil {
		return fail(StepRefresh, err)
	}
	target.UpdateSchema(resp.ABI)

	b.logger.ComponentInfo(logging.ComponentContract, "Contract deployed",
		zap.String("account", account),
		zap.String("package", pkg),
		zap.Int("wasm_bytes", len(p.WASM)),
		zap.Int("actions", len(target.Actions())),
		zap.Duration("elapsed", b.now().Sub(start)),
	)
	return target, nil
}
