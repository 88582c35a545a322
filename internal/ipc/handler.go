package ipc

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/logging"
	"github.com/qb20nh/duckhunt/internal/pipeline"
	"github.com/qb20nh/duckhunt/internal/reaction"
	"github.com/qb20nh/duckhunt/internal/store"
)

// DaemonHandler implements Handler for the duckhunt daemon: it is the
// bridge between control requests and the running pipeline.
type DaemonHandler struct {
	version   string
	startedAt time.Time

	cfgStore *config.Store
	worker   *pipeline.Worker
	reactor  *reaction.Controller
	journal  *store.Journal
	log      *logging.Logger

	hookInstalled bool

	// persistMu serializes config-file writes.
	persistMu sync.Mutex
	fileCfg   *config.Config
	cfgPath   string

	reload   func() error
	shutdown func()
}

// DaemonHandlerConfig wires the handler's dependencies.
type DaemonHandlerConfig struct {
	Version       string
	CfgStore      *config.Store
	Worker        *pipeline.Worker
	Reactor       *reaction.Controller
	Journal       *store.Journal // nil disables history
	Log           *logging.Logger
	HookInstalled bool
	FileCfg       *config.Config
	CfgPath       string
	Reload        func() error
	Shutdown      func()
}

// NewDaemonHandler creates the daemon-side request handler.
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	return &DaemonHandler{
		version:       cfg.Version,
		startedAt:     time.Now(),
		cfgStore:      cfg.CfgStore,
		worker:        cfg.Worker,
		reactor:       cfg.Reactor,
		journal:       cfg.Journal,
		log:           cfg.Log.WithComponent("ipc-handler"),
		hookInstalled: cfg.HookInstalled,
		fileCfg:       cfg.FileCfg,
		cfgPath:       cfg.CfgPath,
		reload:        cfg.Reload,
		shutdown:      cfg.Shutdown,
	}
}

// HandleMessage dispatches a control request.
func (h *DaemonHandler) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	reqID := msg.Header.RequestID

	switch msg.Header.Type {
	case MsgStatus:
		return h.handleStatus(reqID)
	case MsgEnable:
		return h.handleSetEnabled(reqID, true)
	case MsgDisable:
		return h.handleSetEnabled(reqID, false)
	case MsgGetConfig:
		return NewResponse(MsgGetConfigResp, reqID, &ConfigResponse{
			Enabled:   h.cfgStore.Enabled(),
			Detection: h.cfgStore.Detection(),
		})
	case MsgUpdateConfig:
		return h.handleUpdateConfig(reqID, msg.Payload)
	case MsgReload:
		return h.handleReload(reqID)
	case MsgHistory:
		return h.handleHistory(reqID, msg.Payload)
	case MsgShutdown:
		return h.handleShutdown(reqID)
	default:
		return NewErrorMessage(reqID, ErrInvalidRequest, "unknown message type"), nil
	}
}

func (h *DaemonHandler) handleStatus(reqID uint32) (*Message, error) {
	status := &StatusResponse{
		Version:       h.version,
		PID:           os.Getpid(),
		StartedAt:     h.startedAt,
		Uptime:        time.Since(h.startedAt),
		Enabled:       h.cfgStore.Enabled(),
		Armed:         h.reactor.Armed(),
		Detection:     h.cfgStore.Detection(),
		Stats:         h.worker.Snapshot(),
		HookInstalled: h.hookInstalled,
	}
	if err := h.reactor.LastLockError(); err != nil {
		status.LockError = err.Error()
	}

	return NewResponse(MsgStatusResp, reqID, status)
}

func (h *DaemonHandler) handleSetEnabled(reqID uint32, enabled bool) (*Message, error) {
	changed := h.cfgStore.SetEnabled(enabled)
	if changed {
		h.log.Info("detection toggled", "enabled", enabled)
		h.persist(func(c *config.Config) { c.Daemon.Enabled = enabled })
	}

	respType := MsgEnableResp
	if !enabled {
		respType = MsgDisableResp
	}
	return NewResponse(respType, reqID, &Ack{Success: true, Changed: changed})
}

func (h *DaemonHandler) handleUpdateConfig(reqID uint32, payload []byte) (*Message, error) {
	var req UpdateConfigRequest
	if err := Decode(payload, &req); err != nil {
		return NewErrorMessage(reqID, ErrInvalidRequest, "invalid update request"), nil
	}

	d := h.cfgStore.Detection()
	if req.ThresholdMs != nil {
		d.ThresholdMs = *req.ThresholdMs
	}
	if req.HistorySize != nil {
		d.HistorySize = *req.HistorySize
	}
	if req.BurstKeys != nil {
		d.BurstKeys = *req.BurstKeys
	}
	if req.BurstWindowMs != nil {
		d.BurstWindowMs = *req.BurstWindowMs
	}
	if req.AllowAutoType != nil {
		d.AllowAutoType = *req.AllowAutoType
	}

	// The swap validates the whole snapshot; a bad update leaves the
	// running parameters untouched.
	if err := h.cfgStore.SwapDetection(d); err != nil {
		return NewResponse(MsgUpdateConfigResp, reqID, &Ack{Success: false, Error: err.Error()})
	}

	h.log.Info("detection parameters updated",
		"threshold_ms", d.ThresholdMs,
		"history_size", d.HistorySize,
		"burst_keys", d.BurstKeys,
		"burst_window_ms", d.BurstWindowMs,
		"allow_auto_type", d.AllowAutoType)

	h.persist(func(c *config.Config) { c.Detection = d })

	return NewResponse(MsgUpdateConfigResp, reqID, &Ack{Success: true, Changed: true})
}

func (h *DaemonHandler) handleReload(reqID uint32) (*Message, error) {
	if h.reload == nil {
		return NewResponse(MsgReloadResp, reqID, &Ack{Success: false, Error: "reload not supported"})
	}
	if err := h.reload(); err != nil {
		return NewResponse(MsgReloadResp, reqID, &Ack{Success: false, Error: err.Error()})
	}
	return NewResponse(MsgReloadResp, reqID, &Ack{Success: true, Changed: true})
}

func (h *DaemonHandler) handleHistory(reqID uint32, payload []byte) (*Message, error) {
	if h.journal == nil {
		return NewErrorMessage(reqID, ErrUnavailable, "incident journal disabled"), nil
	}

	var req HistoryRequest
	if len(payload) > 0 {
		if err := Decode(payload, &req); err != nil {
			return NewErrorMessage(reqID, ErrInvalidRequest, "invalid history request"), nil
		}
	}

	incidents, err := h.journal.Recent(req.Limit)
	if err != nil {
		return NewErrorMessage(reqID, ErrInternalError, err.Error()), nil
	}

	return NewResponse(MsgHistoryResp, reqID, &HistoryResponse{Incidents: incidents})
}

func (h *DaemonHandler) handleShutdown(reqID uint32) (*Message, error) {
	if h.shutdown == nil {
		return NewResponse(MsgShutdownResp, reqID, &Ack{Success: false, Error: "shutdown not supported"})
	}

	h.log.Info("shutdown requested over control socket")
	// Acknowledge first; the exit happens after this response is written.
	go func() {
		time.Sleep(100 * time.Millisecond)
		h.shutdown()
	}()

	return NewResponse(MsgShutdownResp, reqID, &Ack{Success: true, Changed: true})
}

// SetFileConfig replaces the persisted-config template after a reload.
func (h *DaemonHandler) SetFileConfig(c *config.Config) {
	h.persistMu.Lock()
	defer h.persistMu.Unlock()
	h.fileCfg = c
}

// persist applies a mutation to the file config and saves it. A write
// failure is logged; the in-memory state is already live.
func (h *DaemonHandler) persist(mutate func(*config.Config)) {
	if h.fileCfg == nil {
		return
	}

	h.persistMu.Lock()
	defer h.persistMu.Unlock()

	mutate(h.fileCfg)
	if err := h.fileCfg.Save(h.cfgPath); err != nil {
		h.log.Warn("config persistence failed", "error", err, "path", h.cfgPath)
	}
}
