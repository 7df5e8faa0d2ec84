//go:build windows

// Windows spooling (create a temp file, spool via the shell's print
// verb) is named in spec.md §4.6 but treated as an external
// collaborator: this build leaves it unimplemented rather than fake
// it, since nothing in the retrieval pack demonstrates the Windows
// spooler API.
package printer

import "github.com/racingmars/pr3287/perr"

// Job is a stub PrinterSink on windows; see the package doc comment.
type Job struct {
	Command         string
	TrnPre, TrnPost string
}

func (j *Job) Write(b byte) error {
	return errUnsupported()
}

func (j *Job) WriteBytes(b []byte) error {
	return errUnsupported()
}

func (j *Job) Flush() error {
	return errUnsupported()
}

func (j *Job) EndOfJob() error {
	return errUnsupported()
}

func errUnsupported() error {
	return &perr.PrinterFailure{Err: errWindowsUnsupported}
}

var errWindowsUnsupported = &unsupportedErr{}

type unsupportedErr struct{}

func (*unsupportedErr) Error() string {
	return "printer: windows spooling is not implemented"
}
