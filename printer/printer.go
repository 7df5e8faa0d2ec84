//go:build !windows

// Package printer implements PrinterSink (spec.md §4.6): the
// byte-level job a DsInterpreter or ScsInterpreter renders into.
// Grounded in the POSIX half of the original pr3287 ctlr.c
// (popen_no_sigint/stash/prflush/end-of-job), adapted from a raw
// fork+exec+signal pipeline into Go's os/exec plus
// golang.org/x/sys/unix for the SIGPIPE handling exec.Cmd doesn't
// give you for free, in the style of stlalpha-vision3's
// internal/scheduler executor.
package printer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/racingmars/pr3287/perr"
)

// JobFailed reports a non-zero exit status from the print command.
type JobFailed struct {
	Command string
	Err     error
}

func (e *JobFailed) Error() string {
	return fmt.Sprintf("printer command %q failed: %v", e.Command, e.Err)
}

func (e *JobFailed) Unwrap() error { return e.Err }

// Job is PrinterSink: a lazily-started pipe to an external print
// command. The zero value is ready to use once Command is set.
type Job struct {
	// Command is run through the shell ("/bin/sh -c", mirroring
	// popen), receiving print data on stdin.
	Command string

	// TrnPre and TrnPost, if set, name files copied verbatim to the
	// job's stdin before the first byte and after the last,
	// respectively (spec.md §4.6).
	TrnPre, TrnPost string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer

	started bool
	broken  bool

	sigCh chan os.Signal
}

// Write implements Sink.
func (j *Job) Write(b byte) error {
	if err := j.ensureStarted(); err != nil {
		return err
	}
	if j.broken {
		return &perr.PrinterFailure{Err: fmt.Errorf("printer job: sink broken")}
	}
	if err := j.writer.WriteByte(b); err != nil {
		j.markBroken(err)
		return &perr.PrinterFailure{Err: err}
	}
	return nil
}

// WriteBytes implements Sink.
func (j *Job) WriteBytes(b []byte) error {
	if err := j.ensureStarted(); err != nil {
		return err
	}
	if j.broken {
		return &perr.PrinterFailure{Err: fmt.Errorf("printer job: sink broken")}
	}
	if _, err := j.writer.Write(b); err != nil {
		j.markBroken(err)
		return &perr.PrinterFailure{Err: err}
	}
	return nil
}

// Flush implements Sink: flushes buffered bytes to the child's stdin
// pipe without ending the job, so I/O errors from the print command
// surface promptly rather than at EndOfJob.
func (j *Job) Flush() error {
	if !j.started || j.broken {
		return nil
	}
	if err := j.writer.Flush(); err != nil {
		j.markBroken(err)
		return &perr.PrinterFailure{Err: err}
	}
	return nil
}

// ensureStarted lazily spawns the print command on first write and
// copies the TrnPre prefix, matching stash()'s lazy-popen behavior.
func (j *Job) ensureStarted() error {
	if j.started {
		return nil
	}
	if j.Command == "" {
		return &perr.PrinterFailure{Err: fmt.Errorf("printer job: no command configured")}
	}

	cmd := exec.Command("/bin/sh", "-c", j.Command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &perr.PrinterFailure{Err: err}
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	// The original ignores SIGINT in the print-command child (the
	// parent is about to keep talking to the host and shouldn't be
	// torn down by an interactive Ctrl-C meant for the printer job).
	cmd.SysProcAttr = childIgnoresInterrupt()

	if err := cmd.Start(); err != nil {
		return &perr.PrinterFailure{Err: err}
	}

	j.cmd = cmd
	j.stdin = stdin
	j.writer = bufio.NewWriter(stdin)
	j.started = true

	// A broken pipe to the print command raises SIGPIPE; without a
	// handler the process dies outright, which is not what a
	// long-lived printer session wants from one bad job.
	j.sigCh = make(chan os.Signal, 1)
	signal.Notify(j.sigCh, unix.SIGPIPE)
	go func() {
		for range j.sigCh {
			j.broken = true
		}
	}()

	if j.TrnPre != "" {
		if err := j.copyFile(j.TrnPre); err != nil {
			j.markBroken(err)
			return &perr.PrinterFailure{Err: err}
		}
	}
	return nil
}

func (j *Job) copyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(j.writer, f)
	return err
}

func (j *Job) markBroken(err error) {
	j.broken = true
}

// EndOfJob implements PrinterSink's end_of_job(): copies TrnPost,
// closes the pipe, and waits for the command to exit, reporting a
// non-zero exit as JobFailed.
func (j *Job) EndOfJob() error {
	if !j.started {
		return nil
	}
	defer func() {
		if j.sigCh != nil {
			signal.Stop(j.sigCh)
			close(j.sigCh)
			j.sigCh = nil
		}
		j.started = false
		j.broken = false
		j.cmd = nil
	}()

	var postErr error
	if j.TrnPost != "" && !j.broken {
		postErr = j.copyFile(j.TrnPost)
	}
	if !j.broken {
		_ = j.writer.Flush()
	}
	_ = j.stdin.Close()

	waitErr := j.cmd.Wait()
	if waitErr != nil {
		return &JobFailed{Command: j.Command, Err: waitErr}
	}
	if postErr != nil {
		return &perr.PrinterFailure{Err: postErr}
	}
	return nil
}
