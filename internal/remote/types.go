package remote

import "encoding/json"

// JobStatus is the status string reported for a job.
type JobStatus string

const (
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusUnknown    JobStatus = "unknown"
)

// Terminal reports whether polling must stop at s. Anything other than
// in_progress is terminal, including values this client does not know.
func (s JobStatus) Terminal() bool { return s != StatusInProgress }

// SubmitRequest is the body of POST /verify.
type SubmitRequest struct {
	Repository string   `json:"repository"`
	CommitHash *string  `json:"commit_hash"`
	ProgramID  string   `json:"program_id"`
	LibName    *string  `json:"lib_name"`
	BPFFlag    bool     `json:"bpf_flag"`
	MountPath  *string  `json:"mount_path"`
	BaseImage  *string  `json:"base_image"`
	CargoArgs  []string `json:"cargo_args"`
}

// Optional returns nil for an empty string so it is sent as null.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SubmitResponse is the answer to a successful submission.
type SubmitResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// conflictResponse is the 409 body.
type conflictResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Job is the answer to GET /job/{id}.
type Job struct {
	Status         JobStatus `json:"status"`
	Message        string    `json:"message"`
	OnChainHash    string    `json:"on_chain_hash"`
	ExecutableHash string    `json:"executable_hash"`
	RepoURL        string    `json:"repo_url"`
}

// Match reports whether a completed job built the deployed executable.
func (j *Job) Match() bool {
	return j.Status == StatusCompleted && j.ExecutableHash != "" && j.ExecutableHash == j.OnChainHash
}

// StatusRecord is one signer's verification record from GET /status/{program_id}.
type StatusRecord struct {
	Signer         string `json:"signer"`
	IsVerified     bool   `json:"is_verified"`
	OnChainHash    string `json:"on_chain_hash"`
	ExecutableHash string `json:"executable_hash"`
	RepoURL        string `json:"repo_url"`
	Commit         string `json:"commit"`
	LastVerifiedAt string `json:"last_verified_at"`
}

// statusEnvelope accepts either a bare list or a single record.
type statusEnvelope []StatusRecord

func (e *statusEnvelope) UnmarshalJSON(data []byte) error {
	var list []StatusRecord
	if err := json.Unmarshal(data, &list); err == nil {
		*e = list
		return nil
	}
	var one StatusRecord
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*e = []StatusRecord{one}
	return nil
}
