package e2e

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// CLISession runs a command attached to a pseudo terminal, so the command
// sees a terminal on stdout and renders colors.
type CLISession struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	cancel context.CancelFunc

	mu     sync.RWMutex
	output bytes.Buffer

	done    chan struct{}
	exitErr error
}

// CLISessionConfig contains configuration for a CLI session
type CLISessionConfig struct {
	// Command and arguments to run
	Command string
	Args    []string

	// Working directory
	WorkDir string

	// Environment variables added to the current environment
	Env []string

	// Terminal size
	Rows uint16
	Cols uint16

	// Timeout for the entire session
	Timeout time.Duration
}

// StartCLISession starts the command in a PTY.
func StartCLISession(config *CLISessionConfig) (*CLISession, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Rows == 0 {
		config.Rows = 40
	}
	if config.Cols == 0 {
		config.Cols = 200
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	cmd := exec.CommandContext(ctx, config.Command, config.Args...)
	cmd.Dir = config.WorkDir
	cmd.Env = append(os.Environ(), config.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: config.Rows, Cols: config.Cols})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	s := &CLISession{
		cmd:    cmd,
		ptmx:   ptmx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.captureOutput()
	return s, nil
}

// captureOutput copies PTY output until the command exits, then records
// the exit status.
func (s *CLISession) captureOutput() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.output.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			// Linux reports EIO once the child closes its side.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) {
				s.mu.Lock()
				fmt.Fprintf(&s.output, "\n[pty read error: %v]\n", err)
				s.mu.Unlock()
			}
			break
		}
	}
	s.exitErr = s.cmd.Wait()
	close(s.done)
}

// Output returns everything written so far, escape codes included.
func (s *CLISession) Output() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output.String()
}

// CleanOutput returns the output without escape codes.
func (s *CLISession) CleanOutput() string {
	return strings.Join(CleanLines(s.Output()), "\n")
}

// WaitForText waits until text appears count times in the clean output.
func (s *CLISession) WaitForText(text string, count int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if CountText(s.Output(), text) >= count {
			return nil
		}
		select {
		case <-s.done:
			if CountText(s.Output(), text) >= count {
				return nil
			}
			return fmt.Errorf("command exited before %q appeared %d times:\n%s", text, count, s.CleanOutput())
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("timeout waiting for %q to appear %d times:\n%s", text, count, s.CleanOutput())
}

// Wait blocks until the command exits and returns its exit error.
func (s *CLISession) Wait() error {
	<-s.done
	return s.exitErr
}

// Interrupt sends SIGINT, which the commands treat as a graceful stop.
func (s *CLISession) Interrupt() error {
	if s.cmd.Process == nil {
		return fmt.Errorf("session not started")
	}
	return s.cmd.Process.Signal(os.Interrupt)
}

// Close kills the command if it is still running and releases the PTY.
func (s *CLISession) Close() error {
	select {
	case <-s.done:
	default:
		s.cancel()
		<-s.done
	}
	s.cancel()
	return s.ptmx.Close()
}
