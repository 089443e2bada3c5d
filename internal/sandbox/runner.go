package sandbox

import "context"

// Limits caps the resources of an execution environment. Empty fields are not applied.
type Limits struct {
	Memory string // docker syntax, e.g. "2g"
	CPUs   string // e.g. "2" or "1.5"
}

// IsZero reports whether no limit is set.
func (l Limits) IsZero() bool { return l.Memory == "" && l.CPUs == "" }

// CreateSpec describes an execution environment to create.
type CreateSpec struct {
	Image string
	// MountSource is bind-mounted at MountTarget when set.
	MountSource string
	MountTarget string
	Limits      Limits
	// Command keeps the environment alive; empty means the image default.
	Command []string
}

// Handle identifies a live execution environment.
type Handle struct {
	ID string
}

// Runner is the process runner the executor drives. Implementations wrap a
// container engine; tests use a fake.
type Runner interface {
	// WorkDir returns the default working directory of image.
	WorkDir(ctx context.Context, image string) (string, error)
	Create(ctx context.Context, spec CreateSpec) (Handle, error)
	// Exec runs args inside the environment with dir as working directory.
	Exec(ctx context.Context, h Handle, dir string, args ...string) error
	// CopyOut copies src from the environment to dst on the host.
	CopyOut(ctx context.Context, h Handle, src, dst string) error
	Destroy(ctx context.Context, h Handle) error
}
