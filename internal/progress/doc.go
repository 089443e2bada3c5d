// Package progress renders operator-facing output: the spinner shown while a
// remote job runs, the yes/no prompt used before competing uploads, and the
// verdict summary.
package progress
