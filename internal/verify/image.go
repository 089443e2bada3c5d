package verify

import (
	"context"

	"git.home.luguber.info/inful/verifybuild/internal/eventstore"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/hashing"
	"git.home.luguber.info/inful/verifybuild/internal/ledger"
)

// ImageOptions describes a verify-from-image run.
type ImageOptions struct {
	Image string
	// ExecutablePath is relative to the image working directory.
	ExecutablePath string
	ProgramID      ledger.PublicKey
	CurrentDir     bool
	WorkDir        string
}

// VerifyImage copies a prebuilt executable out of opts.Image and compares it
// with the program deployed at opts.ProgramID.
func (v *Verifier) VerifyImage(ctx context.Context, opts ImageOptions) (Verdict, error) {
	if opts.Image == "" || opts.ExecutablePath == "" {
		return Verdict{}, errors.ValidationError("image and executable path are required").Build()
	}
	ws, err := v.workspace(opts.CurrentDir, opts.WorkDir)
	if err != nil {
		return Verdict{}, err
	}
	if err := ws.Create(); err != nil {
		return Verdict{}, errors.WrapError(err, errors.CategoryFileSystem, "create workspace").Build()
	}
	defer cleanup(ctx, ws)

	art, err := v.builder.executor.ExtractFromImage(ctx, opts.Image, opts.ExecutablePath, ws.Path(), v.builder.limits)
	if err != nil {
		return Verdict{}, v.fail(err)
	}
	if err := v.checkpoint(ctx); err != nil {
		return Verdict{}, err
	}
	onChain, _, err := ProgramHash(ctx, v.chain, opts.ProgramID)
	if err != nil {
		return Verdict{}, v.fail(err)
	}

	verdict := NewVerdict(hashing.Normalize(art.Bytes), onChain)
	v.recorder.IncVerification(verdict.Result())
	v.journal.Record(ctx, eventstore.VerificationCompleted{
		ProgramID:      opts.ProgramID.String(),
		Source:         "image",
		Image:          opts.Image,
		ExecutableHash: verdict.BuiltHash.String(),
		OnChainHash:    verdict.OnChainHash.String(),
		Match:          verdict.Match,
	})
	return verdict, nil
}
