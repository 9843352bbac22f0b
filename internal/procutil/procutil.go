// Package procutil wraps the process-table queries the manager relies on:
// existence and identity checks, exit waits on foreign PIDs, tree-wide
// termination, and port-owner lookup.
package procutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// Exists reports whether a process with the given PID is currently alive.
func Exists(pid int32) bool {
	ok, err := process.PidExists(pid)
	return err == nil && ok
}

// Name returns the process name for pid, or false if the process is gone.
// The lookup races with process exit; callers must tolerate a false result
// for a PID they just observed.
func Name(pid int32) (string, bool) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "", false
	}
	name, err := p.Name()
	if err != nil {
		return "", false
	}
	return name, true
}

// WaitForExit blocks until the process identified by pid no longer exists or
// ctx is canceled. Foreign processes cannot be reaped via the OS wait
// primitives, so this checks existence at pollInterval, the same strategy
// psutil uses for non-child waits.
func WaitForExit(ctx context.Context, pid int32, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if !Exists(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Terminate gracefully stops a single process, escalating to a forced kill
// after grace expires.
func Terminate(pid int32, grace time.Duration) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil // already gone
	}
	if err := p.Terminate(); err != nil {
		// Fall through to kill; the process may ignore or block the signal.
		_ = err
	}
	if waitGone([]int32{pid}, grace) {
		return nil
	}
	if err := p.Kill(); err != nil && Exists(pid) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	if !waitGone([]int32{pid}, 2*time.Second) {
		return fmt.Errorf("pid %d survived forced kill", pid)
	}
	return nil
}

// TerminateTree stops pid and every descendant, escalating to forced kills
// after grace. No orphans survive.
func TerminateTree(pid int32, grace time.Duration) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}
	pids := []int32{pid}
	for _, d := range descendants(p) {
		pids = append(pids, d.Pid)
		_ = d.Terminate()
	}
	_ = p.Terminate()
	if waitGone(pids, grace) {
		return nil
	}
	for _, id := range pids {
		if Exists(id) {
			if q, err := process.NewProcess(id); err == nil {
				_ = q.Kill()
			}
		}
	}
	if !waitGone(pids, 2*time.Second) {
		return fmt.Errorf("process tree of pid %d survived forced kill", pid)
	}
	return nil
}

// descendants collects the full child tree below p, best effort.
func descendants(p *process.Process) []*process.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	var all []*process.Process
	for _, c := range children {
		all = append(all, c)
		all = append(all, descendants(c)...)
	}
	return all
}

// waitGone polls until every pid is gone or the deadline passes.
func waitGone(pids []int32, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		alive := false
		for _, pid := range pids {
			if Exists(pid) {
				alive = true
				break
			}
		}
		if !alive {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// PidListeningOn returns the PID owning the TCP listener on port, if any.
func PidListeningOn(port uint32) (int32, bool) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return 0, false
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && c.Laddr.Port == port && c.Pid > 0 {
			return c.Pid, true
		}
	}
	return 0, false
}

// KillByNames terminates every process whose name contains one of the
// allow-listed entries (case-insensitive). Lookup and kill failures are
// swallowed; the returned names are those actually killed.
func KillByNames(allowList []string) []string {
	if len(allowList) == 0 {
		return nil
	}
	procs, err := process.Processes()
	if err != nil {
		return nil
	}
	var killed []string
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		lower := strings.ToLower(name)
		for _, target := range allowList {
			if target == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(target)) {
				if err := p.Kill(); err == nil {
					killed = append(killed, name)
				}
				break
			}
		}
	}
	return killed
}
