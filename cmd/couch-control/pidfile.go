package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

// pidFile records the PID of the running server so stop and status can
// find it from another shell.
type pidFile string

// Running returns the recorded PID if that process is still alive. A
// file naming a dead process or holding garbage is removed.
func (p pidFile) Running() (int, bool) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && pid > 0 {
		if alive, _ := process.PidExists(int32(pid)); alive {
			return pid, true
		}
	}
	_ = p.Remove()
	return 0, false
}

func (p pidFile) Write() error {
	if err := os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

// Remove deletes the file; a missing file is not an error.
func (p pidFile) Remove() error {
	if err := os.Remove(string(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Stop sends SIGTERM to the recorded process and removes the file.
func (p pidFile) Stop() (int, bool, error) {
	pid, ok := p.Running()
	if !ok {
		return 0, false, nil
	}
	defer p.Remove()
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return pid, true, fmt.Errorf("signalling %d: %w", pid, err)
	}
	return pid, true, nil
}
