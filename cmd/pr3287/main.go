// Command pr3287 is a TN3270E printer-session emulator: it connects
// to a host, negotiates a 3287-class printer LU, and renders the
// resulting 3270/SCS data stream to a local print command. Grounded in
// rcornwell-S370/main.go's getopt-based flag parsing and slog-over-
// custom-handler bootstrap, adapted from an emulator's own telnet
// *server* bring-up to this session's telnet *client* bring-up.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	getopt "github.com/pborman/getopt/v2"

	"github.com/racingmars/pr3287/charset"
	"github.com/racingmars/pr3287/config"
	"github.com/racingmars/pr3287/ds"
	"github.com/racingmars/pr3287/printer"
	"github.com/racingmars/pr3287/scs"
	"github.com/racingmars/pr3287/supervisor"
	"github.com/racingmars/pr3287/telnet"
	"github.com/racingmars/pr3287/tracelog"
)

// pageRows/pageCols size PageBuilder's buffer at MAX_UNF_MPP^2, the
// "swag" sizing original_source/Common/pr3287/ctlr.c uses for its
// page_buf (spec.md's PageBuffer has no fixed geometry of its own).
const (
	pageRows = 132
	pageCols = 132
)

func main() {
	opts, connectTarget, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pr3287:", err)
		os.Exit(1)
	}

	var traceWriter io.Writer
	if opts.TraceFile != "" {
		traceFile, err := os.Create(opts.TraceFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "pr3287: cannot create trace file:", err)
			os.Exit(1)
		}
		defer traceFile.Close()
		traceWriter = traceFile
	}
	log := tracelog.New(traceWriter, opts.DebugTrace, opts.Verbose)

	cs, err := charset.New(opts.CodePage)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pr3287:", err)
		os.Exit(1)
	}
	if opts.XTable != "" {
		if err := cs.LoadXTable(opts.XTable); err != nil {
			fmt.Fprintln(os.Stderr, "pr3287: loading -xtable:", err)
			os.Exit(1)
		}
	}

	job := &printer.Job{
		Command: opts.PrinterCommand,
		TrnPre:  opts.TrnPre,
		TrnPost: opts.TrnPost,
	}

	handler := newSessionHandler(cs, job, log, pageRows, pageCols,
		ds.Options{
			EmFlush:    opts.EmFlush,
			FFSkip:     opts.FFSkip,
			SkipCC:     opts.SkipCC,
			MPP:        opts.MPP,
			BlankLines: opts.BlankLines,
			CRLF:       opts.CRLF,
			DBCS:       opts.DBCS,
		},
		scs.Options{
			CRLF:   opts.CRLF,
			FFSkip: opts.FFSkip,
			FFThru: opts.FFThru,
		},
	)

	host, port, err := splitHostPort(connectTarget, opts.Port)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pr3287:", err)
		os.Exit(1)
	}

	lu := telnet.NewLuSelector(opts.LUNames, opts.Assoc)

	sup := supervisor.New(supervisor.Config{
		Host:             host,
		Port:             port,
		Reconnect:        opts.Reconnect,
		ReconnectBackoff: 5 * time.Second,
		EOJTimeout:       opts.EOJTimeout,
		SyncPort:         opts.SyncPort,
		TermType:         opts.EmulatorName,
		LU:               lu,
	}, handler, log)

	if err := sup.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "pr3287:", err)
		os.Exit(1)
	}
}

// parseFlags mirrors pr3287's historical command line: a handful of
// -flag options followed by a bare [lu[,lu...]@]host[:port] connect
// string, in the style of rcornwell-S370/main.go's getopt.StringLong/
// BoolLong declarations.
func parseFlags() (config.Options, string, error) {
	opts := config.Defaults()

	optAssoc := getopt.StringLong("assoc", 0, "", "Associate with LU")
	optCharset := getopt.StringLong("charset", 0, opts.CodePage, "Host code page")
	optXTable := getopt.StringLong("xtable", 0, "", "Translation table override file")
	optCommand := getopt.StringLong("command", 'c', "lpr", "Print command (POSIX)")
	optPrinter := getopt.StringLong("printer", 'p', "", "Printer queue name (Windows)")
	optTrnPre := getopt.StringLong("trnpre", 0, "", "File sent before each job")
	optTrnPost := getopt.StringLong("trnpost", 0, "", "File sent after each job")
	optEmFlush := getopt.BoolLong("emflush", 0, "Flush unformatted output on EM")
	optFFSkip := getopt.BoolLong("ffskip", 0, "Suppress leading/trailing formfeeds")
	optFFThru := getopt.BoolLong("ffthru", 0, "Pass SCS formfeeds through literally")
	optCRLF := getopt.BoolLong("crlf", 0, "Emit CR/LF instead of bare LF")
	optCRThru := getopt.BoolLong("crthru", 0, "Accepted; has no effect")
	optBlankLines := getopt.BoolLong("blanklines", 0, "Emit trailing blank lines")
	optSkipCC := getopt.BoolLong("skipcc", 0, "Don't count column 1 as printable")
	optDBCS := getopt.BoolLong("dbcs", 0, "Advertise DBCS_ASIA support in Query Reply")
	optMPP := getopt.IntLong("mpp", 0, opts.MPP, "Max printable positions per line")
	optReconnect := getopt.BoolLong("reconnect", 'r', "Reconnect after the host disconnects")
	optSyncPort := getopt.IntLong("syncport", 0, 0, "Companion sync-socket port")
	optEOJTimeout := getopt.IntLong("eojtimeout", 0, 0, "End-of-job flush timeout (seconds)")
	optIgnoreEOJ := getopt.BoolLong("ignoreeoj", 0, "Accepted; PRINT-EOJ from the host is still acted on")
	optVerbose := getopt.BoolLong("v", 'v', "Verbose tracing to stderr")
	optTraceFile := getopt.StringLong("trace", 0, "", "Trace file path")
	optDebugTrace := getopt.BoolLong("debug", 0, "Include data-stream detail in the trace")
	optHelp := getopt.BoolLong("help", 'h', "Help")

	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	rest := getopt.Args()
	if len(rest) != 1 {
		return opts, "", fmt.Errorf("expected exactly one connect argument, got %d", len(rest))
	}

	opts.Assoc = *optAssoc
	opts.CodePage = *optCharset
	opts.XTable = *optXTable
	opts.PrinterCommand = *optCommand
	opts.PrinterName = *optPrinter
	opts.TrnPre = *optTrnPre
	opts.TrnPost = *optTrnPost
	opts.EmFlush = *optEmFlush
	opts.FFSkip = *optFFSkip
	opts.FFThru = *optFFThru
	opts.CRLF = *optCRLF
	opts.CRThru = *optCRThru
	opts.BlankLines = *optBlankLines
	opts.SkipCC = *optSkipCC
	opts.DBCS = *optDBCS
	opts.MPP = *optMPP
	opts.Reconnect = *optReconnect
	opts.SyncPort = *optSyncPort
	opts.EOJTimeout = time.Duration(*optEOJTimeout) * time.Second
	opts.IgnoreEOJ = *optIgnoreEOJ
	opts.Verbose = *optVerbose
	opts.TraceFile = *optTraceFile
	opts.DebugTrace = *optDebugTrace

	target, luNames := parseConnectString(rest[0])
	opts.LUNames = luNames
	return opts, target, nil
}

// parseConnectString splits pr3287's historical "lu1,lu2@host" form
// into the candidate LU list and the bare host[:port] target.
func parseConnectString(s string) (target string, luNames []string) {
	if idx := strings.LastIndex(s, "@"); idx >= 0 {
		luNames = strings.Split(s[:idx], ",")
		return s[idx+1:], luNames
	}
	return s, nil
}

func splitHostPort(target string, defaultPort int) (string, int, error) {
	host, portStr, ok := strings.Cut(target, ":")
	if !ok {
		return target, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}
