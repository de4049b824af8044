package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/audit"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/fault"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/gateway"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/policy"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/shared/clock"
)

// tokenFor builds an authorization token carrying the agent identity in
// its top bits.
func tokenFor(agent protocol.AgentID) uint64 {
	return uint64(agent) << 48
}

type mockFS struct {
	listed  []string
	deleted []string
	written []protocol.WriteRequest
	created []string
	fail    error
}

func (m *mockFS) List(_ context.Context, path string) ([]string, error) {
	m.listed = append(m.listed, path)
	return []string{"a.txt", "b.txt"}, m.fail
}

func (m *mockFS) Read(_ context.Context, req protocol.ReadRequest) ([]byte, error) {
	return []byte("contents of " + req.Path), m.fail
}

func (m *mockFS) Write(_ context.Context, req protocol.WriteRequest) error {
	m.written = append(m.written, req)
	return m.fail
}

func (m *mockFS) Stat(_ context.Context, path string) (FileInfo, error) {
	return FileInfo{Size: 42}, m.fail
}

func (m *mockFS) Create(_ context.Context, path string, _ protocol.CreateKind) error {
	m.created = append(m.created, path)
	return m.fail
}

func (m *mockFS) Delete(_ context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	return m.fail
}

type mockAudio struct {
	played  []uint32
	stopped int
	volume  []byte
}

func (m *mockAudio) Play(_ context.Context, track uint32) error {
	m.played = append(m.played, track)
	return nil
}

func (m *mockAudio) Stop(context.Context) error {
	m.stopped++
	return nil
}

func (m *mockAudio) SetVolume(_ context.Context, level byte) error {
	m.volume = append(m.volume, level)
	return nil
}

func (m *mockAudio) Record(_ context.Context, durationMillis uint32) ([]byte, error) {
	return make([]byte, durationMillis/1000), nil
}

type mockDocs struct {
	edits []uint32
}

func (m *mockDocs) New(context.Context, string) (uint32, error) { return 7, nil }

func (m *mockDocs) Edit(_ context.Context, ref uint32, _ string) error {
	m.edits = append(m.edits, ref)
	return nil
}

func (m *mockDocs) Save(context.Context, uint32, string) error { return nil }

type mockCapture struct{ shots int }

func (m *mockCapture) Screenshot(context.Context) ([]byte, error) {
	m.shots++
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

type mockModels struct {
	requests []gateway.Request
	agents   []protocol.AgentID
	err      error
}

func (m *mockModels) Route(_ context.Context, agent protocol.AgentID, req gateway.Request) (*gateway.Response, error) {
	m.requests = append(m.requests, req)
	m.agents = append(m.agents, agent)
	if m.err != nil {
		return nil, m.err
	}
	return &gateway.Response{Backend: "claude", Text: "ok"}, nil
}

type counters struct {
	dispatches  map[string]int
	denies      int
	badFrames   int
	unsupported int
	audits      int
}

func newCounters() *counters {
	return &counters{dispatches: make(map[string]int)}
}

func (c *counters) RecordDispatch(opcode, outcome string, _ time.Duration) {
	c.dispatches[opcode+":"+outcome]++
}
func (c *counters) RecordDeny(string)  { c.denies++ }
func (c *counters) RecordBadFrame()    { c.badFrames++ }
func (c *counters) RecordUnsupported() { c.unsupported++ }
func (c *counters) RecordAudit()       { c.audits++ }

type touches struct{ agents []protocol.AgentID }

func (t *touches) Touch(id protocol.AgentID) { t.agents = append(t.agents, id) }

type presented struct {
	opcodes []protocol.Opcode
	data    [][]byte
}

func (p *presented) Deliver(_ protocol.AgentID, opcode protocol.Opcode, data []byte) {
	p.opcodes = append(p.opcodes, opcode)
	p.data = append(p.data, data)
}

type fixture struct {
	d       *Dispatcher
	engine  *policy.Engine
	log     *audit.Log
	fs      *mockFS
	audio   *mockAudio
	docs    *mockDocs
	capture *mockCapture
	models  *mockModels
	tel     *counters
	touched *touches
	shown   *presented
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	f := &fixture{
		engine:  policy.NewEngine(),
		log:     audit.New(clk),
		fs:      &mockFS{},
		audio:   &mockAudio{},
		docs:    &mockDocs{},
		capture: &mockCapture{},
		models:  &mockModels{},
		tel:     newCounters(),
		touched: &touches{},
		shown:   &presented{},
	}
	f.d = New(Options{
		Engine:     f.engine,
		Audit:      f.log,
		Clock:      clk,
		Telemetry:  f.tel,
		Filesystem: f.fs,
		Audio:      f.audio,
		Documents:  f.docs,
		Capture:    f.capture,
		Models:     f.models,
		Activity:   f.touched,
		Presenter:  f.shown,
	})
	return f
}

func (f *fixture) handle(op protocol.Opcode, agent protocol.AgentID, payload []byte) error {
	return f.d.Handle(context.Background(), protocol.Frame{
		Opcode:  op,
		Token:   tokenFor(agent),
		Payload: payload,
	})
}

// An agent without the filesystem capability asking to list /tmp/ is
// denied, audited as denied, and the effector never runs.
func TestDispatch_DeniedListAudited(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapAudioControl}, policy.Scope{})

	err := f.handle(protocol.OpFsList, 7, protocol.PathRequest{Path: "/tmp/"}.Encode())

	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Empty(t, f.fs.listed)

	recs := f.log.Recent(1)
	require.Len(t, recs, 1)
	assert.Equal(t, protocol.AgentID(7), recs[0].AgentID)
	assert.Equal(t, protocol.OpFsList, recs[0].Opcode)
	assert.False(t, recs[0].Allowed)
	assert.Equal(t, 1, f.tel.denies)
}

// An agent with audio control playing track 42 succeeds and the audit
// trail shows the allowed call.
func TestDispatch_AllowedPlayAudited(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapAudioControl}, policy.Scope{})

	err := f.handle(protocol.OpAudioPlay, 7, protocol.PlayRequest{Track: 42}.Encode())

	require.NoError(t, err)
	assert.Equal(t, []uint32{42}, f.audio.played)

	recs := f.log.Recent(1)
	require.Len(t, recs, 1)
	assert.Equal(t, protocol.OpAudioPlay, recs[0].Opcode)
	assert.True(t, recs[0].Allowed)
	assert.Equal(t, 1, f.tel.dispatches["audio_play:ok"])
}

func TestDispatch_UnsupportedOpcodeNotAudited(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapAdmin}, policy.Scope{})

	err := f.handle(protocol.Opcode(0x2F), 7, nil)

	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, 1, f.tel.unsupported)
	assert.Zero(t, f.log.TotalOps())
}

// A malformed payload on a matched opcode is still audited, as denied.
func TestDispatch_BadFrameAudited(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapFsBasic}, policy.Scope{})

	// Length prefix claims more bytes than the payload holds.
	err := f.handle(protocol.OpFsList, 7, []byte{200, 0, 'x'})

	assert.ErrorIs(t, err, protocol.ErrBadFrame)
	assert.Equal(t, 1, f.tel.badFrames)

	recs := f.log.Recent(1)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Allowed)
	assert.Equal(t, uint64(1), f.log.TotalOps())
}

// Every matched frame produces exactly one audit record, allowed or not.
func TestDispatch_TotalOpsCountsMatchedFrames(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapFsBasic}, policy.Scope{})

	f.handle(protocol.OpFsList, 7, protocol.PathRequest{Path: "/a"}.Encode())   // allowed
	f.handle(protocol.OpFsDelete, 7, protocol.PathRequest{Path: "/a"}.Encode()) // denied
	f.handle(protocol.OpFsList, 7, []byte{99})                                  // bad frame
	f.handle(protocol.Opcode(0xFF), 7, nil)                                     // unmatched

	assert.Equal(t, uint64(3), f.log.TotalOps())
	assert.Equal(t, 3, f.tel.audits)
}

func TestDispatch_CreateDeleteNeedElevatedCapability(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapFsBasic}, policy.Scope{})
	f.engine.Register(8, []policy.Capability{policy.CapFsAdmin}, policy.Scope{})

	assert.ErrorIs(t, f.handle(protocol.OpFsCreate, 7, protocol.CreateRequest{Path: "/tmp/x"}.Encode()), ErrAuthFailed)
	assert.ErrorIs(t, f.handle(protocol.OpFsDelete, 7, protocol.PathRequest{Path: "/tmp/x"}.Encode()), ErrAuthFailed)

	assert.NoError(t, f.handle(protocol.OpFsCreate, 8, protocol.CreateRequest{Path: "/tmp/x"}.Encode()))
	assert.NoError(t, f.handle(protocol.OpFsDelete, 8, protocol.PathRequest{Path: "/tmp/x"}.Encode()))
}

func TestDispatch_WriteSizeScopeEnforced(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapFsBasic}, policy.Scope{MaxFileSize: 8})

	small := protocol.WriteRequest{Path: "/tmp/ok", Data: []byte("12345678")}
	require.NoError(t, f.handle(protocol.OpFsWrite, 7, small.Encode()))

	big := protocol.WriteRequest{Path: "/tmp/big", Data: []byte("123456789")}
	assert.ErrorIs(t, f.handle(protocol.OpFsWrite, 7, big.Encode()), ErrAuthFailed)
	assert.Len(t, f.fs.written, 1)
}

func TestDispatch_PathScopeEnforced(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapFsBasic}, policy.Scope{PathPrefix: "/data/"})

	require.NoError(t, f.handle(protocol.OpFsRead, 7, protocol.ReadRequest{Path: "/data/report"}.Encode()))
	assert.ErrorIs(t, f.handle(protocol.OpFsRead, 7, protocol.ReadRequest{Path: "/etc/passwd"}.Encode()), ErrAuthFailed)
}

func TestDispatch_ZeroAgentDenied(t *testing.T) {
	f := newFixture(t)

	err := f.handle(protocol.OpAudioStop, 0, nil)

	assert.ErrorIs(t, err, ErrAuthFailed)
	recs := f.log.Recent(1)
	require.Len(t, recs, 1)
	assert.Equal(t, protocol.AgentID(0), recs[0].AgentID)
	assert.False(t, recs[0].Allowed)
}

func TestDispatch_ModelRequestRoutesThroughGateway(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapModelRequest}, policy.Scope{})

	req := protocol.ModelRequest{Prompt: "summarize", MaxTokens: 256}
	require.NoError(t, f.handle(protocol.OpModelRequest, 7, req.Encode()))

	require.Len(t, f.models.requests, 1)
	assert.Equal(t, "summarize", f.models.requests[0].Prompt)
	assert.Equal(t, uint32(256), f.models.requests[0].MaxTokens)
	assert.Equal(t, protocol.AgentID(7), f.models.agents[0])
}

func TestDispatch_ModelRequestDefaultBudget(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapModelRequest}, policy.Scope{})

	payload := protocol.PathRequest{Path: "prompt text"}.Encode() // bare TLV, no budget
	require.NoError(t, f.handle(protocol.OpModelRequest, 7, payload))

	assert.Equal(t, protocol.DefaultMaxTokens, f.models.requests[0].MaxTokens)
}

func TestDispatch_GatewayErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapModelRequest}, policy.Scope{})
	f.models.err = gateway.ErrRateLimited

	err := f.handle(protocol.OpModelRequest, 7, protocol.ModelRequest{Prompt: "x", MaxTokens: 10}.Encode())

	assert.ErrorIs(t, err, gateway.ErrRateLimited)
	// Still audited as allowed; policy said yes, the gateway said later.
	assert.True(t, f.log.Recent(1)[0].Allowed)
	assert.Equal(t, 1, f.tel.dispatches["model_request:error"])
}

func TestDispatch_ActivityTouchedOnlyWhenAllowed(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapAudioControl}, policy.Scope{})

	f.handle(protocol.OpAudioStop, 7, nil)
	f.handle(protocol.OpFsList, 7, protocol.PathRequest{Path: "/x"}.Encode())

	assert.Equal(t, []protocol.AgentID{7}, f.touched.agents)
}

func TestDispatch_PresenterReceivesOutput(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapFsBasic, policy.CapScreenshot}, policy.Scope{})

	require.NoError(t, f.handle(protocol.OpFsRead, 7, protocol.ReadRequest{Path: "/data/x"}.Encode()))
	require.NoError(t, f.handle(protocol.OpScreenshot, 7, nil))

	require.Len(t, f.shown.opcodes, 2)
	assert.Equal(t, protocol.OpFsRead, f.shown.opcodes[0])
	assert.Equal(t, []byte("contents of /data/x"), f.shown.data[0])
	assert.Equal(t, protocol.OpScreenshot, f.shown.opcodes[1])
}

func TestDispatch_EffectorErrorWrapped(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapFsBasic}, policy.Scope{})
	f.fs.fail = errors.New("disk full")

	err := f.handle(protocol.OpFsWrite, 7, protocol.WriteRequest{Path: "/x", Data: []byte("d")}.Encode())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	// Policy allowed it; the audit trail records the grant, not the
	// effector outcome.
	assert.True(t, f.log.Recent(1)[0].Allowed)
}

func TestDispatch_HandleRawFrame(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapAudioControl}, policy.Scope{})

	raw := protocol.EncodeFrame(protocol.Frame{
		Opcode:  protocol.OpAudioVolume,
		Token:   tokenFor(7),
		Payload: protocol.VolumeRequest{Level: 70}.Encode(),
	})

	require.NoError(t, f.d.HandleRaw(context.Background(), raw))
	assert.Equal(t, []byte{70}, f.audio.volume)

	// A frame too short for a header is counted but not audited.
	assert.ErrorIs(t, f.d.HandleRaw(context.Background(), []byte{0x36}), protocol.ErrBadFrame)
	assert.Equal(t, uint64(1), f.log.TotalOps())
}

// Per-agent audit order matches dispatch order.
func TestDispatch_AuditOrderPerAgent(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(7, []policy.Capability{policy.CapAudioControl}, policy.Scope{})

	ops := []protocol.Opcode{protocol.OpAudioPlay, protocol.OpAudioStop, protocol.OpAudioVolume}
	f.handle(protocol.OpAudioPlay, 7, protocol.PlayRequest{Track: 1}.Encode())
	f.handle(protocol.OpAudioStop, 7, nil)
	f.handle(protocol.OpAudioVolume, 7, protocol.VolumeRequest{Level: 10}.Encode())

	recs := f.log.Recent(3)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, ops[len(ops)-1-i], rec.Opcode)
	}
}

type abuseStub struct {
	denials int
	trip    int
}

func (a *abuseStub) RecordDenial(id protocol.AgentID) *fault.Fault {
	a.denials++
	if a.denials >= a.trip {
		return &fault.Fault{AgentID: id, Kind: fault.CapabilityViolation, Detail: "denial streak"}
	}
	return nil
}

func (a *abuseStub) RecordAllowed(protocol.AgentID) { a.denials = 0 }

type faultSink struct{ faults []fault.Fault }

func (s *faultSink) HandleFault(_ context.Context, f fault.Fault) error {
	s.faults = append(s.faults, f)
	return nil
}

func TestDispatch_DenialStreakReportsFault(t *testing.T) {
	f := newFixture(t)
	abuse := &abuseStub{trip: 3}
	sink := &faultSink{}
	f.d.opts.Abuse = abuse
	f.d.opts.Faults = sink
	f.engine.Register(7, []policy.Capability{policy.CapAudioControl}, policy.Scope{})

	payload := protocol.PathRequest{Path: "/x"}.Encode()
	for i := 0; i < 3; i++ {
		f.handle(protocol.OpFsList, 7, payload)
	}

	require.Len(t, sink.faults, 1)
	assert.Equal(t, fault.CapabilityViolation, sink.faults[0].Kind)
	assert.Equal(t, protocol.AgentID(7), sink.faults[0].AgentID)
}
