// Package dispatch is the gate every wire frame passes through: decode,
// policy check, audit, then the effector. Exactly one audit record is
// written for every matched opcode, whatever the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/audit"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/fault"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/policy"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

var (
	// ErrAuthFailed reports a policy denial. The effector was not invoked.
	ErrAuthFailed = errors.New("authorization failed")

	// ErrUnsupported reports an opcode outside the dispatch table.
	ErrUnsupported = errors.New("unsupported opcode")
)

// Outcome labels used in dispatch telemetry.
const (
	outcomeOk         = "ok"
	outcomeError      = "error"
	outcomeBadFrame   = "bad_frame"
	outcomeAuthFailed = "auth_failed"
)

// Telemetry is the counter surface the dispatcher reports into.
type Telemetry interface {
	RecordDispatch(opcode, outcome string, duration time.Duration)
	RecordDeny(reason string)
	RecordBadFrame()
	RecordUnsupported()
	RecordAudit()
}

type nopTelemetry struct{}

func (nopTelemetry) RecordDispatch(string, string, time.Duration) {}
func (nopTelemetry) RecordDeny(string)                            {}
func (nopTelemetry) RecordBadFrame()                              {}
func (nopTelemetry) RecordUnsupported()                           {}
func (nopTelemetry) RecordAudit()                                 {}

// Activity receives liveness touches for allowed operations.
type Activity interface {
	Touch(protocol.AgentID)
}

// AbuseMonitor watches denial streaks. A non-nil fault from RecordDenial
// is forwarded to the fault handler.
type AbuseMonitor interface {
	RecordDenial(protocol.AgentID) *fault.Fault
	RecordAllowed(protocol.AgentID)
}

// FaultHandler carries out recovery for reported faults.
type FaultHandler interface {
	HandleFault(ctx context.Context, f fault.Fault) error
}

// invocation is one decoded operation ready to run.
type invocation struct {
	resource policy.Resource
	run      func(ctx context.Context, agent protocol.AgentID) ([]byte, error)
}

// handler binds an opcode to its capability and payload decoder.
type handler struct {
	capability policy.Capability
	decode     func(d *Dispatcher, payload []byte) (invocation, error)
}

// Options carries the dispatcher's collaborators. Filesystem, Audio,
// Documents, Capture, and Models back their respective opcodes; Activity,
// Abuse, Faults, and Presenter are optional.
type Options struct {
	Engine    *policy.Engine
	Audit     *audit.Log
	Clock     clock.Clock
	Telemetry Telemetry
	Logger    *logging.Logger

	Filesystem Filesystem
	Audio      Audio
	Documents  Documents
	Capture    Capture
	Models     ModelRouter

	Activity  Activity
	Abuse     AbuseMonitor
	Faults    FaultHandler
	Presenter Presenter
}

// Dispatcher routes decoded frames through policy and audit to effectors.
type Dispatcher struct {
	opts  Options
	table map[protocol.Opcode]handler
}

// New builds a dispatcher with the full opcode table.
func New(opts Options) *Dispatcher {
	if opts.Telemetry == nil {
		opts.Telemetry = nopTelemetry{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	d := &Dispatcher{opts: opts}
	d.table = buildTable()
	return d
}

// HandleRaw decodes and dispatches a wire frame. Frames too malformed to
// name an opcode are counted but cannot be audited against one.
func (d *Dispatcher) HandleRaw(ctx context.Context, raw []byte) error {
	frame, err := protocol.DecodeFrame(raw)
	if err != nil {
		d.opts.Telemetry.RecordBadFrame()
		return err
	}
	return d.Handle(ctx, frame)
}

// Handle dispatches one decoded frame.
func (d *Dispatcher) Handle(ctx context.Context, frame protocol.Frame) error {
	start := d.opts.Clock.Now()
	h, ok := d.table[frame.Opcode]
	if !ok {
		// Unknown opcode: counted separately, never audited, policy
		// never consulted.
		d.opts.Telemetry.RecordUnsupported()
		return fmt.Errorf("opcode 0x%02X: %w", byte(frame.Opcode), ErrUnsupported)
	}

	agent := protocol.AgentFromToken(frame.Token)
	opname := frame.Opcode.String()

	inv, err := h.decode(d, frame.Payload)
	if err != nil {
		d.appendAudit(agent, frame.Opcode, false)
		d.opts.Telemetry.RecordBadFrame()
		d.opts.Telemetry.RecordDispatch(opname, outcomeBadFrame, d.opts.Clock.Now().Sub(start))
		return err
	}

	decision := d.opts.Engine.Check(agent, h.capability, inv.resource)
	d.appendAudit(agent, frame.Opcode, decision.Allowed)

	if !decision.Allowed {
		d.opts.Telemetry.RecordDeny(decision.Reason)
		d.opts.Telemetry.RecordDispatch(opname, outcomeAuthFailed, d.opts.Clock.Now().Sub(start))
		d.opts.Logger.Debug("operation denied",
			zap.Uint16("agent_id", uint16(agent)),
			zap.String("opcode", opname),
			zap.String("reason", decision.Reason),
		)
		d.reportDenial(ctx, agent)
		return fmt.Errorf("%s: %s: %w", opname, decision.Reason, ErrAuthFailed)
	}

	if d.opts.Abuse != nil {
		d.opts.Abuse.RecordAllowed(agent)
	}
	if d.opts.Activity != nil {
		d.opts.Activity.Touch(agent)
	}

	data, err := inv.run(ctx, agent)
	outcome := outcomeOk
	if err != nil {
		outcome = outcomeError
	}
	d.opts.Telemetry.RecordDispatch(opname, outcome, d.opts.Clock.Now().Sub(start))
	if err != nil {
		return fmt.Errorf("%s: %w", opname, err)
	}
	if data != nil && d.opts.Presenter != nil {
		d.opts.Presenter.Deliver(agent, frame.Opcode, data)
	}
	return nil
}

func (d *Dispatcher) appendAudit(agent protocol.AgentID, opcode protocol.Opcode, allowed bool) {
	d.opts.Audit.Append(agent, opcode, allowed)
	d.opts.Telemetry.RecordAudit()
}

func (d *Dispatcher) reportDenial(ctx context.Context, agent protocol.AgentID) {
	if d.opts.Abuse == nil {
		return
	}
	f := d.opts.Abuse.RecordDenial(agent)
	if f == nil || d.opts.Faults == nil {
		return
	}
	if err := d.opts.Faults.HandleFault(ctx, *f); err != nil {
		d.opts.Logger.Warn("fault handling failed",
			zap.Uint16("agent_id", uint16(agent)),
			zap.Error(err),
		)
	}
}
