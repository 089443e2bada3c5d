package verify

import (
	"errors"

	"git.home.luguber.info/inful/verifybuild/internal/hashing"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
)

// ErrMismatch reports a negative verdict where the caller treats it as a failure.
var ErrMismatch = errors.New("executable hash does not match the deployed program")

// Verdict is the outcome of comparing a build with the deployed program.
type Verdict struct {
	Match       bool
	BuiltHash   hashing.CanonicalHash
	OnChainHash hashing.CanonicalHash
}

// NewVerdict compares two canonical hashes.
func NewVerdict(built, onChain hashing.CanonicalHash) Verdict {
	return Verdict{Match: built.Equal(onChain), BuiltHash: built, OnChainHash: onChain}
}

// Compare normalizes both buffers and compares their hashes.
func Compare(built, onChain []byte) Verdict {
	return NewVerdict(hashing.Normalize(built), hashing.Normalize(onChain))
}

// Result maps the verdict onto the verification metric label.
func (v Verdict) Result() metrics.VerificationResult {
	if v.Match {
		return metrics.VerificationMatch
	}
	return metrics.VerificationMismatch
}
