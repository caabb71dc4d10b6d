package probe

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Lock files consulted on Debian and RPM family systems. Missing paths are
// ignored by fuser, so one list covers both families.
const lockFiles = "/var/lib/dpkg/lock-frontend /var/lib/dpkg/lock /var/lib/apt/lists/lock /var/cache/apt/archives/lock /var/run/yum.pid /var/lib/rpm/.rpm.lock"

// The bracket trick keeps pgrep from matching the shell that carries this
// pattern in its own command line.
const processPattern = "[a]pt-get|[a]pt |[a]ptd|[d]pkg|[u]nattended-upgrade|[y]um|[d]nf|[z]ypper"

// statusCommand prints "PID command" lines for every lock holder and every
// running package-manager process. Duplicates are fine; parsing dedupes.
const statusCommand = `for p in $(fuser ` + lockFiles + ` 2>/dev/null); do echo "$p $(ps -o comm= -p "$p" 2>/dev/null || echo unknown)"; done; pgrep -l -f '` + processPattern + `' 2>/dev/null; true`

// LinuxProbe inspects apt/dpkg and yum/dnf activity on a Linux target by
// running shell commands through a Runner.
type LinuxProbe struct {
	runner Runner
}

// NewLinuxProbe creates a probe for Linux targets.
func NewLinuxProbe(runner Runner) *LinuxProbe {
	return &LinuxProbe{runner: runner}
}

// Status implements the Probe interface.
func (p *LinuxProbe) Status(ctx context.Context) (Status, error) {
	out, err := p.runner.Execute(ctx, statusCommand)
	if err != nil {
		return Status{CheckedAt: time.Now()}, err
	}

	holders := parseHolders(out)
	return Status{
		Busy:        len(holders) > 0,
		LockHolders: holders,
		CheckedAt:   time.Now(),
	}, nil
}

// parseHolders parses "PID command" lines, deduplicating by PID. Lines that
// do not start with a PID are skipped.
func parseHolders(out string) []LockHolder {
	seen := make(map[int]bool)
	var holders []LockHolder

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true

		command := "unknown"
		if len(fields) > 1 {
			command = strings.Join(fields[1:], " ")
		}
		holders = append(holders, LockHolder{PID: pid, Command: command})
	}

	sort.Slice(holders, func(i, j int) bool { return holders[i].PID < holders[j].PID })
	return holders
}
