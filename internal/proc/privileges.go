// Package proc covers the daemon's process-level plumbing: dropping
// elevated privileges back to the invoking user and detaching from the
// controlling terminal.
package proc

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// DropPrivileges returns to the invoking user's uid/gid when the
// process runs as root under sudo or pkexec. Root without an invoking
// user, or a non-root process, is left untouched. Best effort by
// contract: the daemon keeps running either way.
func DropPrivileges() error {
	if os.Geteuid() != 0 {
		return nil
	}

	uid, gid, err := invokingUser()
	if err != nil {
		return err
	}
	if uid == 0 {
		return nil
	}

	// Group first; after setuid the process can no longer change it.
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("proc: setgid %d: %w", gid, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("proc: setuid %d: %w", uid, err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("proc: chdir /: %w", err)
	}
	repairXDG(uid)

	slog.Info("proc: privileges dropped", "uid", uid, "gid", gid)
	return nil
}

// invokingUser resolves the pre-elevation identity: sudo exports both
// ids, pkexec only the uid.
func invokingUser() (uid, gid int, err error) {
	if su := os.Getenv("SUDO_UID"); su != "" {
		uid, err = strconv.Atoi(su)
		if err != nil {
			return 0, 0, fmt.Errorf("proc: bad SUDO_UID %q", su)
		}
		if sg := os.Getenv("SUDO_GID"); sg != "" {
			gid, err = strconv.Atoi(sg)
			if err != nil {
				return 0, 0, fmt.Errorf("proc: bad SUDO_GID %q", sg)
			}
			return uid, gid, nil
		}
	} else if pk := os.Getenv("PKEXEC_UID"); pk != "" {
		uid, err = strconv.Atoi(pk)
		if err != nil {
			return 0, 0, fmt.Errorf("proc: bad PKEXEC_UID %q", pk)
		}
	} else {
		return 0, 0, nil
	}

	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return 0, 0, fmt.Errorf("proc: lookup uid %d: %w", uid, err)
	}
	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("proc: bad gid %q for uid %d", u.Gid, uid)
	}
	return uid, gid, nil
}

// repairXDG restores the runtime directories sudo/pkexec point at
// root's locations, so the audio stack finds the user's session.
func repairXDG(uid int) {
	runtime := "/run/user/" + strconv.Itoa(uid)
	if st, err := os.Stat(runtime); err == nil && st.IsDir() {
		os.Setenv("XDG_RUNTIME_DIR", runtime)
	}
	if os.Getenv("XDG_CONFIG_HOME") == "" {
		if u, err := user.LookupId(strconv.Itoa(uid)); err == nil && u.HomeDir != "" {
			os.Setenv("XDG_CONFIG_HOME", u.HomeDir+"/.config")
		}
	}
}
