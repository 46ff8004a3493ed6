package handler

import (
	"github.com/erp/syncd/internal/application/optimistic"
	syncapp "github.com/erp/syncd/internal/application/sync"
	"github.com/erp/syncd/internal/domain/shared"
	"github.com/erp/syncd/internal/infrastructure/transport"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnectionStater reports the push-channel lifecycle state
type ConnectionStater interface {
	State() transport.ConnectionState
}

// SyncHandler exposes the synchronized read models and the optimistic
// write tracker over HTTP. All endpoints are read-or-annotate only; the
// actual business writes go to the backend REST API, not through here.
type SyncHandler struct {
	BaseHandler
	views   map[shared.Domain]syncapp.View
	tracker *optimistic.Tracker
	conn    ConnectionStater
	logger  *zap.Logger
}

// NewSyncHandler creates a sync handler over the given domain views
func NewSyncHandler(views []syncapp.View, tracker *optimistic.Tracker, conn ConnectionStater, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	byDomain := make(map[shared.Domain]syncapp.View, len(views))
	for _, v := range views {
		byDomain[v.Domain()] = v
	}
	return &SyncHandler{
		views:   byDomain,
		tracker: tracker,
		conn:    conn,
		logger:  logger,
	}
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	{
		sync.GET("/status", h.Status)
		sync.GET("/:domain/snapshot", h.Snapshot)
		sync.POST("/writes", h.BeginWrite)
		sync.DELETE("/writes/:id", h.CancelWrite)
	}
}

// DomainStatus is the per-domain slice of the status response
type DomainStatus struct {
	Domain              shared.Domain `json:"domain"`
	LastAppliedSequence uint64        `json:"last_applied_sequence"`
	Entities            int           `json:"entities"`
}

// StatusResponse is the full sync status response
type StatusResponse struct {
	Connection    transport.ConnectionState `json:"connection"`
	Domains       []DomainStatus            `json:"domains"`
	PendingWrites int                       `json:"pending_writes"`
}

// Status returns the connection state and per-domain sync progress
func (h *SyncHandler) Status(c *gin.Context) {
	resp := StatusResponse{
		Connection:    h.conn.State(),
		PendingWrites: h.tracker.PendingCount(),
	}
	for _, domain := range shared.Domains() {
		view, ok := h.views[domain]
		if !ok {
			continue
		}
		resp.Domains = append(resp.Domains, DomainStatus{
			Domain:              domain,
			LastAppliedSequence: view.LastAppliedSequence(),
			Entities:            view.Len(),
		})
	}
	h.Success(c, resp)
}

// SnapshotResponse is the annotated entity list for one domain
type SnapshotResponse struct {
	Domain              shared.Domain       `json:"domain"`
	LastAppliedSequence uint64              `json:"last_applied_sequence"`
	Entries             []syncapp.EntryView `json:"entries"`
}

// Snapshot returns the current read model for one domain, each entry
// annotated with its pending and unconfirmed write status
func (h *SyncHandler) Snapshot(c *gin.Context) {
	domain, err := shared.ParseDomain(c.Param("domain"))
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	view, ok := h.views[domain]
	if !ok {
		h.HandleError(c, shared.ErrUnknownDomain)
		return
	}
	h.Success(c, SnapshotResponse{
		Domain:              domain,
		LastAppliedSequence: view.LastAppliedSequence(),
		Entries:             view.Entries(),
	})
}

// BeginWriteRequest declares one optimistic write the UI just issued
type BeginWriteRequest struct {
	Domain   string         `json:"domain" binding:"required"`
	EntityID string         `json:"entity_id" binding:"required"`
	Expected map[string]any `json:"expected"`
}

// BeginWriteResponse carries the tracking handle for a registered write
type BeginWriteResponse struct {
	WriteID uuid.UUID `json:"write_id"`
}

// BeginWrite registers an optimistic write so the next matching push can
// confirm or conflict it
func (h *SyncHandler) BeginWrite(c *gin.Context) {
	var req BeginWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	domain, err := shared.ParseDomain(req.Domain)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.views[domain]; !ok {
		h.HandleError(c, shared.ErrUnknownDomain)
		return
	}

	id := h.tracker.BeginWrite(domain, req.EntityID, req.Expected)
	h.logger.Debug("optimistic write registered",
		zap.String("domain", string(domain)),
		zap.String("entity_id", req.EntityID))
	h.Created(c, BeginWriteResponse{WriteID: id})
}

// CancelWrite removes a pending write, typically after the REST call that
// issued it failed
func (h *SyncHandler) CancelWrite(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "write id must be a UUID")
		return
	}
	if !h.tracker.Cancel(id) {
		h.NotFound(c, "no pending write with that id")
		return
	}
	h.NoContent(c)
}
