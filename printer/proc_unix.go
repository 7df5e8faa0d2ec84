//go:build !windows

package printer

import "syscall"

// childIgnoresInterrupt puts the print command in its own process
// group so a SIGINT delivered to this process's foreground group
// (e.g. an interactive Ctrl-C aimed at the session) doesn't also
// land on the child, mirroring the original's SIG_IGN(SIGINT) in the
// forked print-command child.
func childIgnoresInterrupt() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
