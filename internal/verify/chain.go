package verify

import (
	"context"
	stderrors "errors"

	"git.home.luguber.info/inful/verifybuild/internal/config"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/hashing"
	"git.home.luguber.info/inful/verifybuild/internal/ledger"
)

// Chain is the ledger-query collaborator.
type Chain interface {
	ledger.AccountReader
	GetGenesisHash(ctx context.Context) (string, error)
}

// classifyChainError keeps a missing account and a closed program distinct
// from each other and from transport failures.
func classifyChainError(err error, address ledger.PublicKey) error {
	switch {
	case stderrors.Is(err, ledger.ErrProgramNotDeployed):
		return errors.NotFoundError("program is not deployed").
			WithCause(err).WithContext("program_id", address.String()).Build()
	case stderrors.Is(err, ledger.ErrAccountNotFound):
		return errors.NotFoundError("account not found").
			WithCause(err).WithContext("address", address.String()).Build()
	case stderrors.Is(err, ledger.ErrNotUpgradeable):
		return errors.ValidationError("account is not an upgradeable program").
			WithCause(err).WithContext("address", address.String()).Build()
	case stderrors.Is(err, context.Canceled):
		return errors.WrapError(err, errors.CategoryInterrupted, "ledger query cancelled").Build()
	default:
		return errors.WrapError(err, errors.CategoryLedger, "ledger query failed").
			WithContext("address", address.String()).Build()
	}
}

// ProgramHash returns the canonical hash of the executable deployed at
// program, with the program-data header removed, and the program data itself.
func ProgramHash(ctx context.Context, r ledger.AccountReader, program ledger.PublicKey) (hashing.CanonicalHash, *ledger.ProgramData, error) {
	pd, err := ledger.FetchProgramData(ctx, r, program)
	if err != nil {
		return "", nil, classifyChainError(err, program)
	}
	return hashing.Normalize(pd.Executable), pd, nil
}

// BufferHash returns the canonical hash of the bytes held in a loader buffer.
func BufferHash(ctx context.Context, r ledger.AccountReader, buffer ledger.PublicKey) (hashing.CanonicalHash, error) {
	data, err := ledger.FetchBuffer(ctx, r, buffer)
	if err != nil {
		return "", classifyChainError(err, buffer)
	}
	return hashing.Normalize(data), nil
}

// RequireMainnet fails unless chain is the main network. The remote farm only
// verifies mainnet programs.
func RequireMainnet(ctx context.Context, chain Chain) error {
	genesis, err := chain.GetGenesisHash(ctx)
	switch {
	case stderrors.Is(err, context.Canceled):
		return errors.WrapError(err, errors.CategoryInterrupted, "read genesis hash").Build()
	case err != nil:
		return errors.WrapError(err, errors.CategoryLedger, "read genesis hash").Build()
	}
	if genesis != config.MainnetGenesisHash {
		return errors.ValidationError("remote verification is only supported on mainnet").
			WithContext("genesis_hash", genesis).Build()
	}
	return nil
}
