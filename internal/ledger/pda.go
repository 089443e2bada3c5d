package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	maxSeeds   = 16
	maxSeedLen = 32
	pdaMarker  = "ProgramDerivedAddress"
)

var (
	// ErrInvalidSeeds means the seeds exceed the derivation limits.
	ErrInvalidSeeds = errors.New("invalid seeds for derived address")
	// ErrOnCurve means the candidate hash is a valid public key and cannot be a derived address.
	ErrOnCurve = errors.New("derived address lies on the ed25519 curve")
	// ErrNoViableBump means no bump seed produced an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b [32]byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

// CreateProgramAddress hashes seeds with programID and returns the address
// if it is off the curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > maxSeeds {
		return PublicKey{}, fmt.Errorf("%w: %d seeds", ErrInvalidSeeds, len(seeds))
	}
	h := sha256.New()
	for i, s := range seeds {
		if len(s) > maxSeedLen {
			return PublicKey{}, fmt.Errorf("%w: seed %d is %d bytes", ErrInvalidSeeds, i, len(s))
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var out PublicKey
	copy(out[:], h.Sum(nil))
	if IsOnCurve(out) {
		return PublicKey{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bump seeds from 255 down to 1 and returns the
// first off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	return findBump(func(bump uint8) (PublicKey, error) {
		withBump[len(seeds)] = []byte{bump}
		return CreateProgramAddress(withBump, programID)
	})
}

// findBump tries bumps 255 through 1. Bump 0 is never searched.
func findBump(try func(bump uint8) (PublicKey, error)) (PublicKey, uint8, error) {
	for bump := 255; bump >= 1; bump-- {
		addr, err := try(uint8(bump))
		switch {
		case err == nil:
			return addr, uint8(bump), nil
		case errors.Is(err, ErrOnCurve):
			continue
		default:
			return PublicKey{}, 0, err
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}
