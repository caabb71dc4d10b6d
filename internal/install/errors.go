package install

import (
	"errors"
	"fmt"

	"github.com/imamik/agentup/internal/diagnostics"
)

// Code classifies a terminal failure. Every failed run surfaces exactly one
// code, mapped 1:1 to a documented process exit code.
type Code string

const (
	// CodeSystemNotReady means the init/disk/memory/network checks never
	// all passed before the readiness ceiling.
	CodeSystemNotReady Code = "SYSTEM_NOT_READY"

	// CodePackageManagerBusy means package-manager contention never
	// cleared within the contention ceiling.
	CodePackageManagerBusy Code = "PACKAGE_MANAGER_BUSY"

	// CodePackageInstallFailed means retries were exhausted on an install
	// step.
	CodePackageInstallFailed Code = "PACKAGE_INSTALL_FAILED"

	// CodeServiceVerificationFailed means the installed agent failed its
	// health check or control-plane registration.
	CodeServiceVerificationFailed Code = "SERVICE_VERIFICATION_FAILED"
)

// ExitCode maps the code to the process exit status surfaced to callers.
func (c Code) ExitCode() int {
	switch c {
	case CodeSystemNotReady:
		return 10
	case CodePackageManagerBusy:
		return 11
	case CodePackageInstallFailed:
		return 12
	case CodeServiceVerificationFailed:
		return 13
	default:
		return 1
	}
}

// ErrorRecord is the immutable, classified description of why a run
// terminated in failure. It is created once at the point of failure and
// surfaced unchanged to the caller and the structured logs.
type ErrorRecord struct {
	Code             Code
	Message          string
	RemediationHints []string
	Diagnostics      *diagnostics.Snapshot
}

// Error implements the error interface.
func (r *ErrorRecord) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// newErrorRecord builds a record for the given code, deriving remediation
// hints deterministically from the code.
func newErrorRecord(code Code, cause error, snapshot *diagnostics.Snapshot) *ErrorRecord {
	return &ErrorRecord{
		Code:             code,
		Message:          cause.Error(),
		RemediationHints: hintsFor(code),
		Diagnostics:      snapshot,
	}
}

// AsErrorRecord extracts the ErrorRecord from an error chain.
func AsErrorRecord(err error) (*ErrorRecord, bool) {
	var rec *ErrorRecord
	if errors.As(err, &rec) {
		return rec, true
	}
	return nil, false
}

// ExitCodeFor returns the exit status for any error: the taxonomy code for
// ErrorRecords, 1 otherwise, 0 for nil.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if rec, ok := AsErrorRecord(err); ok {
		return rec.Code.ExitCode()
	}
	return 1
}

// hintsFor derives operator guidance from the failure code. Hints are fixed
// per code, never free-form.
func hintsFor(code Code) []string {
	switch code {
	case CodeSystemNotReady:
		return []string{
			"check cloud-init progress on the target: cloud-init status --long",
			"verify the machine meets the disk and memory floors in the config",
			"confirm the install source URL is reachable from the target network",
		}
	case CodePackageManagerBusy:
		return []string{
			"inspect the reported lock holders on the target: ps -p <pid>",
			"wait for unattended-upgrades to finish, or stop it: systemctl stop unattended-upgrades",
			"raise contention_timeout if background maintenance regularly exceeds it",
		}
	case CodePackageInstallFailed:
		return []string{
			"review the last underlying error and the diagnostics snapshot",
			"re-run the install; completed steps are idempotent and safe to repeat",
			"raise max_retries or base_delay if the failures look transient",
		}
	case CodeServiceVerificationFailed:
		return []string{
			"check the agent service on the target: systemctl status <service> and journalctl -u <service>",
			"verify the control plane URL and registration token",
			"confirm the downloaded agent version matches the expected checksum",
		}
	default:
		return nil
	}
}
