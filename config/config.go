// Package config holds the immutable options record built from CLI
// flags at startup (spec.md §6). Options is constructed once in
// cmd/pr3287/main.go and passed by value from then on; nothing in the
// core mutates it.
package config

import "time"

// Options is the frozen configuration for one pr3287go invocation.
type Options struct {
	EmulatorName string
	Host         string
	Port         int

	LUNames []string
	Assoc   string

	Reconnect bool
	SyncPort  int

	EmFlush    bool
	FFSkip     bool
	FFThru     bool
	FFEOJ      bool
	CRLF       bool
	CRThru     bool
	BlankLines bool
	SkipCC     bool
	MPP        int

	IgnoreEOJ  bool
	EOJTimeout time.Duration

	XTable  string
	TrnPre  string
	TrnPost string

	// PrinterCommand is the POSIX print pipeline (the command line a
	// printer.Job runs through /bin/sh -c). PrinterName is its Windows
	// analogue (a spooler queue name); exactly one is meaningful per
	// build target, matching the teacher's own build-tag convention for
	// platform-specific fields.
	PrinterCommand string
	PrinterName    string

	CodePage string
	DBCS     bool

	Verbose    bool
	TraceFile  string
	DebugTrace bool
}

// DefaultMPP is the unformatted-mode default line length (spec.md §3's
// wcc_line_length ∈ {unformatted132, 40, 64, 80}; 132 is the
// unformatted default).
const DefaultMPP = 132

// Defaults returns an Options populated with pr3287's historical
// defaults, ready for CLI flags to override.
func Defaults() Options {
	return Options{
		EmulatorName: "IBM-3287-1",
		Port:         23,
		MPP:          DefaultMPP,
		EOJTimeout:   0,
		CodePage:     "037",
	}
}
