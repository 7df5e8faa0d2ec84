package main

import (
	"github.com/racingmars/pr3287/charset"
	"github.com/racingmars/pr3287/ds"
	"github.com/racingmars/pr3287/perr"
	"github.com/racingmars/pr3287/printer"
	"github.com/racingmars/pr3287/scs"
	"github.com/racingmars/pr3287/telnet"
	"github.com/racingmars/pr3287/tracelog"
)

// sessionHandler implements supervisor.Handler: it fans inbound
// TN3270E records out to DsInterpreter or ScsInterpreter by data_type,
// and turns the resulting Status into a TN3270E positive/negative
// response when the host asked for one (spec.md §4.1, §4.2).
type sessionHandler struct {
	ds  *ds.Interpreter
	scs *scs.Interpreter
	job *printer.Job
	log *tracelog.Logger
}

func newSessionHandler(cs *charset.Translator, job *printer.Job, log *tracelog.Logger, rows, cols int, dsOpts ds.Options, scsOpts scs.Options) *sessionHandler {
	page := ds.NewPageBuilder(rows, cols)
	return &sessionHandler{
		ds:  ds.NewInterpreter(page, cs, job, dsOpts),
		scs: scs.NewInterpreter(cs, job, scsOpts),
		job: job,
		log: log,
	}
}

func (h *sessionHandler) HandleRecord(fsm *telnet.Fsm, hdr telnet.Header, payload []byte) error {
	switch hdr.DataType {
	case telnet.DT3270Data:
		return h.handle3270(fsm, hdr, payload)
	case telnet.DTSCSData:
		return h.handleSCS(fsm, hdr, payload)
	case telnet.DTPrintEOJ:
		return h.endOfJob(fsm, hdr)
	case telnet.DTBindImage, telnet.DTUnbind:
		// Session shape changes the teacher never modeled beyond
		// accepting them; nothing in the printer core depends on BIND
		// contents.
		return nil
	default:
		return nil
	}
}

func (h *sessionHandler) handle3270(fsm *telnet.Fsm, hdr telnet.Header, payload []byte) error {
	status, err := h.ds.Dispatch(payload)
	if sendErr := h.respond(fsm, hdr, status, err); sendErr != nil {
		return sendErr
	}
	for _, reply := range h.ds.TakeReplies() {
		if err := fsm.SendRecord(reply, telnet.DT3270Data, telnet.RSFNoResponse); err != nil {
			return &perr.Transient{Err: err}
		}
	}
	return err
}

func (h *sessionHandler) handleSCS(fsm *telnet.Fsm, hdr telnet.Header, payload []byte) error {
	err := h.scs.Process(payload)
	status := ds.OkayNoOutput
	if err != nil {
		status = ds.Failed
	}
	return h.respond(fsm, hdr, status, err)
}

func (h *sessionHandler) endOfJob(fsm *telnet.Fsm, hdr telnet.Header) error {
	if err := h.Flush(); err != nil {
		_ = h.respond(fsm, hdr, ds.Failed, err)
		return err
	}
	var jobErr error
	if h.job != nil {
		jobErr = h.job.EndOfJob()
	}
	return h.respond(fsm, hdr, ds.OkayNoOutput, jobErr)
}

// respond maps a DsInterpreter/ScsInterpreter Status to the TN3270E
// response spec.md §4.2's Failure semantics calls for: a failure is
// always reported negative regardless of what the host asked for;
// success is only acknowledged when the host requested ALWAYS-RESPONSE.
func (h *sessionHandler) respond(fsm *telnet.Fsm, hdr telnet.Header, status ds.Status, err error) error {
	if err != nil {
		reason := telnet.NegCommandReject
		switch status {
		case ds.BadAddr:
			reason = telnet.NegOperationCheck
		case ds.Failed:
			reason = telnet.NegInterventionRequired
		}
		if sendErr := fsm.RespondNegative(hdr.Seq, reason); sendErr != nil {
			return &perr.Transient{Err: sendErr}
		}
		return nil
	}
	if hdr.ResponseFlag == telnet.RSFAlwaysResponse {
		if sendErr := fsm.RespondPositive(hdr.Seq); sendErr != nil {
			return &perr.Transient{Err: sendErr}
		}
	}
	return nil
}

// Flush implements supervisor.Handler: renders whatever page is
// pending in either interpreter.
func (h *sessionHandler) Flush() error {
	if err := h.ds.Flush(); err != nil {
		return err
	}
	return h.scs.Flush()
}
