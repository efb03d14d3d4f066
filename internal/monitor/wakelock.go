package monitor

import (
	"log"
	"os/exec"
	"sync"
)

// Lease is a "prevent idle sleep" guarantee held for the lifetime of the
// detection loop. Release must be safe to call exactly once per Acquire,
// including on abnormal loop exit.
type Lease interface {
	Acquire() error
	Release()
}

// InhibitLease holds a systemd-inhibit child process for the duration of the
// lease. On hosts without systemd-inhibit it degrades to a logged no-op
// rather than blocking detection.
type InhibitLease struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewInhibitLease creates an unacquired lease.
func NewInhibitLease() *InhibitLease {
	return &InhibitLease{}
}

// Acquire starts the inhibitor child.
func (l *InhibitLease) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != nil {
		return nil
	}
	if _, err := exec.LookPath("systemd-inhibit"); err != nil {
		log.Printf("monitor: systemd-inhibit not available, running without sleep inhibitor")
		return nil
	}

	cmd := exec.Command("systemd-inhibit",
		"--what=idle:sleep",
		"--who=wayve-go-srv",
		"--why=ambient music detection",
		"--mode=block",
		"sleep", "infinity")
	if err := cmd.Start(); err != nil {
		return err
	}

	l.cmd = cmd
	log.Printf("monitor: sleep inhibitor acquired")
	return nil
}

// Release stops the inhibitor child. Safe to call when never acquired.
func (l *InhibitLease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd == nil {
		return
	}
	_ = l.cmd.Process.Kill()
	_ = l.cmd.Wait()
	l.cmd = nil
	log.Printf("monitor: sleep inhibitor released")
}
