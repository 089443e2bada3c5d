// Package provenance reads and writes on-chain provenance records: which
// repository, commit and build arguments produced a deployed program, as
// attested by a signer.
//
// A record lives at an address derived from the seed "otter_verify", the
// signer and the program. The on-chain verify program derives the same
// address independently, so the derivation must never change.
package provenance
