package proc

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// daemonEnvMarker tells the re-executed child it is the detached copy.
const daemonEnvMarker = "SYNTHPIPE_DAEMONIZED"

// IsDaemonChild reports whether this process is the detached re-exec.
func IsDaemonChild() bool {
	return os.Getenv(daemonEnvMarker) == "1"
}

// Detach re-executes the binary in a new session with stdio pointed at
// /dev/null and returns the child pid; the caller exits afterwards.
// Re-exec stands in for the double fork a Go process cannot do.
func Detach() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("proc: resolve executable: %w", err)
	}

	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("proc: open %s: %w", os.DevNull, err)
	}
	defer null.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnvMarker+"=1")
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("proc: detach: %w", err)
	}
	return cmd.Process.Pid, nil
}
