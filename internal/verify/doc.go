// Package verify compares a deterministically built executable with the one
// deployed on the ledger.
//
// A verdict needs both hashes. Failures to obtain either side (no program
// account, a closed program, a failed build) are returned as errors and never
// reported as a mismatch.
package verify
