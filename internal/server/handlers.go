package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/audit"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/compliance"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/fault"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/gateway"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/policy"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/supervisor"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/telemetry"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/ws"
)

// Handlers exposes the supervision layer's read and admin surface.
type Handlers struct {
	sup     *supervisor.Supervisor
	ctrl    *policy.Controller
	auditor *audit.Log
	tracker *compliance.Tracker
	reviews *fault.ReviewQueue
	tel     *telemetry.Aggregator
	disp    *dispatch.Dispatcher
	events  *ws.Hub
}

// NewHandlers wires the handler set. A nil hub disables the event stream.
func NewHandlers(sup *supervisor.Supervisor, ctrl *policy.Controller, auditor *audit.Log, tracker *compliance.Tracker, reviews *fault.ReviewQueue, tel *telemetry.Aggregator, disp *dispatch.Dispatcher, events *ws.Hub) *Handlers {
	return &Handlers{
		sup:     sup,
		ctrl:    ctrl,
		auditor: auditor,
		tracker: tracker,
		reviews: reviews,
		tel:     tel,
		disp:    disp,
		events:  events,
	}
}

// Root describes the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "agentsys",
		"status":  "running",
	})
}

// Health reports liveness and headline counters.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"agents":           len(h.sup.Agents()),
		"total_operations": h.auditor.TotalOps(),
	})
}

// ListAgents returns the registry.
func (h *Handlers) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.sup.Agents()})
}

// GetAgent returns one agent's metadata.
func (h *Handlers) GetAgent(c *gin.Context) {
	id, ok := h.agentID(c)
	if !ok {
		return
	}
	meta, found := h.sup.Agent(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

// SpawnAgent starts an agent from a JSON spec.
func (h *Handlers) SpawnAgent(c *gin.Context) {
	var body struct {
		Name         string       `json:"name" binding:"required"`
		Capabilities []string     `json:"capabilities"`
		Scope        policy.Scope `json:"scope"`
		AutoRestart  bool         `json:"auto_restart"`
		MaxRestarts  int          `json:"max_restarts"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caps := make([]policy.Capability, 0, len(body.Capabilities))
	for _, name := range body.Capabilities {
		cp, err := policy.ParseCapability(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		caps = append(caps, cp)
	}

	spec := supervisor.NewSpec(body.Name).WithCapabilities(caps...).WithScope(body.Scope)
	if body.AutoRestart {
		spec = spec.WithAutoRestart(body.MaxRestarts)
	}

	meta, err := h.sup.Spawn(c.Request.Context(), spec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, meta)
}

// PatchPolicy applies a runtime policy patch to an agent.
func (h *Handlers) PatchPolicy(c *gin.Context) {
	id, ok := h.agentID(c)
	if !ok {
		return
	}
	var patch policy.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.ctrl.Apply(id, patch)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
	case errors.Is(err, policy.ErrAdminGrant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, policy.ErrUnknownAgent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// TerminateAgent removes an agent permanently.
func (h *Handlers) TerminateAgent(c *gin.Context) {
	id, ok := h.agentID(c)
	if !ok {
		return
	}
	if err := h.sup.Terminate(c.Request.Context(), id, "operator request"); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "terminated"})
}

// LinkAgent records a dependency edge from the agent to another.
func (h *Handlers) LinkAgent(c *gin.Context) {
	id, ok := h.agentID(c)
	if !ok {
		return
	}
	var body struct {
		DependsOn uint16 `json:"depends_on" binding:"required"`
		Kind      string `json:"kind" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := supervisor.ParseDepKind(body.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.sup.Link(id, protocol.AgentID(body.DependsOn), kind)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "linked"})
	case errors.Is(err, policy.ErrUnknownAgent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// AgentLinks returns the agent's view of the dependency graph.
func (h *Handlers) AgentLinks(c *gin.Context) {
	id, ok := h.agentID(c)
	if !ok {
		return
	}
	links, err := h.sup.Links(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, links)
}

// ResumeAgent reactivates a suspended agent.
func (h *Handlers) ResumeAgent(c *gin.Context) {
	id, ok := h.agentID(c)
	if !ok {
		return
	}
	if err := h.sup.Resume(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

// RecentAudit returns the newest audit records.
func (h *Handlers) RecentAudit(c *gin.Context) {
	n := 50
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid n"})
			return
		}
		n = parsed
	}
	c.JSON(http.StatusOK, gin.H{"records": h.auditor.Recent(n)})
}

// TotalOperations returns the durable operation counter.
func (h *Handlers) TotalOperations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"total_operations": h.auditor.TotalOps()})
}

// Telemetry returns the aggregator snapshot. Serialized with sonic; the
// per-agent map can get large.
func (h *Handlers) Telemetry(c *gin.Context) {
	data, err := sonic.Marshal(h.tel.Snapshot())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// ComplianceReport summarizes risk events in a trailing window.
func (h *Handlers) ComplianceReport(c *gin.Context) {
	window := time.Hour
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window"})
			return
		}
		window = parsed
	}

	data, err := sonic.Marshal(gin.H{
		"report": h.tracker.Report(window),
		"totals": h.tracker.Totals(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// Events streams lifecycle events over WebSocket.
func (h *Handlers) Events(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
		return
	}
	h.events.Handle(c)
}

// auditExportWindow matches the retention of both rings.
const auditExportWindow = 256

// ExportAudit returns the retained audit window and compliance trail as
// gzip-compressed JSON, for offline review tooling.
func (h *Handlers) ExportAudit(c *gin.Context) {
	data, err := sonic.Marshal(gin.H{
		"total_operations": h.auditor.TotalOps(),
		"audit":            h.auditor.Recent(auditExportWindow),
		"compliance":       h.tracker.Recent(auditExportWindow),
		"exported_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := gz.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Encoding", "gzip")
	c.Header("Content-Disposition", "attachment; filename=audit-export.json.gz")
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

// PendingReviews lists open escalations.
func (h *Handlers) PendingReviews(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reviews": h.reviews.Pending()})
}

// ResolveReview closes an escalation.
func (h *Handlers) ResolveReview(c *gin.Context) {
	if err := h.reviews.Resolve(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// InjectFrame dispatches a hex-encoded wire frame. Operator tooling only;
// the frame runs through the same gate as any agent traffic.
func (h *Handlers) InjectFrame(c *gin.Context) {
	var body struct {
		Frame string `json:"frame" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, err := hex.DecodeString(body.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hex"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()

	err = h.disp.HandleRaw(ctx, raw)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "dispatched"})
	case errors.Is(err, protocol.ErrBadFrame), errors.Is(err, dispatch.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrAuthFailed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, gateway.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handlers) agentID(c *gin.Context) (protocol.AgentID, bool) {
	parsed, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil || parsed == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent id"})
		return 0, false
	}
	return protocol.AgentID(parsed), true
}
