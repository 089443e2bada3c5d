package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyProgramID   = "program_id"
	KeyImage       = "image"
	KeyContainerID = "container_id"
	KeyRequestID   = "request_id"
	KeyJobStatus   = "job_status"
	KeyPath        = "path"
	KeyURL         = "url"
	KeyCommit      = "commit"
	KeyHash        = "hash"
	KeySignature   = "signature"
	KeyAddress     = "address"
	KeyVersion     = "version"
	KeyDurationMS  = "duration_ms"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func ProgramID(id string) slog.Attr    { return slog.String(KeyProgramID, id) }
func Image(ref string) slog.Attr       { return slog.String(KeyImage, ref) }
func ContainerID(id string) slog.Attr  { return slog.String(KeyContainerID, id) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func JobStatus(s string) slog.Attr     { return slog.String(KeyJobStatus, s) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Commit(c string) slog.Attr        { return slog.String(KeyCommit, c) }
func Hash(h string) slog.Attr          { return slog.String(KeyHash, h) }
func Signature(s string) slog.Attr     { return slog.String(KeySignature, s) }
func Address(a string) slog.Attr       { return slog.String(KeyAddress, a) }
func Version(v string) slog.Attr       { return slog.String(KeyVersion, v) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
