package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	daemonEnv = "EMA_BRACKET_DAEMON"
	pidFile   = "ema-bracket-bot.pid"
)

// IsDaemon reports whether the process is running as the detached child
func IsDaemon() bool {
	return os.Getenv(daemonEnv) == "true"
}

// StartDaemon re-launches the current executable in the background and
// records its PID for later Stop/Restart.
func StartDaemon(args []string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Env = append(os.Environ(), daemonEnv+"=true")
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	fmt.Printf("Daemon started with PID %d, PID file %s\n", cmd.Process.Pid, pidFile)
	return nil
}

// StopDaemon stops the background process recorded in the PID file
func StopDaemon() error {
	pidData, err := os.ReadFile(pidFile)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := parsePID(pidData)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Kill(); err != nil {
		return fmt.Errorf("failed to kill process: %w", err)
	}

	if err := os.Remove(pidFile); err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	fmt.Printf("Daemon with PID %d has been stopped.\n", pid)
	return nil
}

// RestartDaemon restarts the daemon process
func RestartDaemon(args []string) error {
	if err := StopDaemon(); err != nil {
		fmt.Printf("Warning: could not stop daemon: %v\n", err)
	}
	return StartDaemon(args)
}

func parsePID(data []byte) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file contents %q", data)
	}
	return pid, nil
}
