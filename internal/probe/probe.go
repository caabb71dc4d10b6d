// Package probe inspects a target machine for running package-manager
// processes and held package-database locks.
//
// The [Probe] interface abstracts the OS-specific inspection so tests can
// substitute scripted statuses and so additional OS families can be added
// without touching the contention monitor built on top of it.
package probe

import (
	"context"
	"time"
)

// LockHolder identifies a process holding a package-manager lock or running a
// package-manager command.
type LockHolder struct {
	PID     int    `json:"pid"`
	Command string `json:"command"`
}

// Status describes the package-manager contention state of the target at one
// point in time. It is rebuilt on every poll and never mutated.
type Status struct {
	Busy             bool         `json:"busy"`
	LockHolders      []LockHolder `json:"lockHolders,omitempty"`
	EstimatedClearAt *time.Time   `json:"estimatedClearAt,omitempty"`
	CheckedAt        time.Time    `json:"checkedAt"`
}

// Probe enumerates package-manager activity on the target machine.
type Probe interface {
	Status(ctx context.Context) (Status, error)
}

// Runner executes a shell command on the target machine and returns its
// combined output. The SSH client satisfies this.
type Runner interface {
	Execute(ctx context.Context, command string) (string, error)
}
