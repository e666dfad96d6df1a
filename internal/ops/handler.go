package ops

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	evaluator *Evaluator
	engine    *Engine
	sweeper   *Sweeper
	logger    apt.Logger
	config    *apt.Config
	tlm       *telemetry.HTTP
}

type HandlerDeps struct {
	Evaluator *Evaluator
	Engine    *Engine
	Sweeper   *Sweeper
}

func NewHandler(hd HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		evaluator: hd.Evaluator,
		engine:    hd.Engine,
		sweeper:   hd.Sweeper,
		logger:    logger,
		config:    config,
		tlm:       telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ops", func(r chi.Router) {
		r.Get("/slo", h.SLO)
		r.Post("/escalations/sweep", h.Sweep)
		r.Get("/incidents", h.ListIncidents)
		r.Patch("/incidents/{id}/ack", h.AcknowledgeIncident)
		r.Patch("/incidents/{id}/resolve", h.ResolveIncident)
	})
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func (h *Handler) SLO(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SLO")
	defer finish()
	log := h.log(r)

	q := r.URL.Query()
	window, err := ParseWindowMinutes(q.Get("window_minutes"))
	if err != nil {
		h.respondError(w, log, err, "Could not build SLO snapshot")
		return
	}

	snap, err := h.evaluator.Snapshot(r.Context(), q.Get("location_id"), window)
	if err != nil {
		h.respondError(w, log, err, "Could not build SLO snapshot")
		return
	}

	apt.Respond(w, http.StatusOK, snap, nil)
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Sweep")
	defer finish()
	log := h.log(r)

	var in struct {
		LocationID    string      `json:"location_id"`
		WindowMinutes interface{} `json:"window_minutes"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	q := r.URL.Query()
	locationID := in.LocationID
	if strings.TrimSpace(locationID) == "" {
		locationID = q.Get("location_id")
	}
	rawWindow := rawNumber(in.WindowMinutes)
	if rawWindow == "" {
		rawWindow = q.Get("window_minutes")
	}

	window, err := ParseWindowMinutes(rawWindow)
	if err != nil {
		h.respondError(w, log, err, "Could not run escalation sweep")
		return
	}

	res, err := h.sweeper.Sweep(r.Context(), locationID, window)
	if err != nil {
		h.respondError(w, log, err, "Could not run escalation sweep")
		return
	}

	log.Info("escalation sweep completed",
		"location_id", res.LocationID,
		"health", res.HealthStatus,
		"created", res.SyncResult.CreatedCount,
		"escalated", res.SyncResult.EscalatedCount,
		"auto_resolved", res.SyncResult.AutoResolvedCount,
	)
	apt.Respond(w, http.StatusOK, res, nil)
}

func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListIncidents")
	defer finish()
	log := h.log(r)

	q := r.URL.Query()
	page, err := h.engine.List(r.Context(), IncidentListParams{
		LocationID: q.Get("location_id"),
		Statuses:   q.Get("status"),
		Severity:   q.Get("severity"),
		Limit:      q.Get("limit"),
		Offset:     q.Get("offset"),
	})
	if err != nil {
		h.respondError(w, log, err, "Could not list incidents")
		return
	}

	apt.Respond(w, http.StatusOK, page, nil)
}

type incidentNoteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) AcknowledgeIncident(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AcknowledgeIncident")
	defer finish()
	log := h.log(r)

	id, ok := h.parseIncidentID(w, r)
	if !ok {
		return
	}
	var in incidentNoteRequest
	if !h.decode(w, r, &in) {
		return
	}

	view, err := h.engine.Acknowledge(r.Context(), id, actorFrom(r), in.Note)
	if err != nil {
		h.respondError(w, log, err, "Could not acknowledge incident")
		return
	}

	log.Info("incident acknowledged", "incident_id", id, "actor", view.AcknowledgedBy)
	apt.Respond(w, http.StatusOK, view, nil)
}

func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ResolveIncident")
	defer finish()
	log := h.log(r)

	id, ok := h.parseIncidentID(w, r)
	if !ok {
		return
	}
	var in incidentNoteRequest
	if !h.decode(w, r, &in) {
		return
	}

	view, err := h.engine.Resolve(r.Context(), id, actorFrom(r), in.Note)
	if err != nil {
		h.respondError(w, log, err, "Could not resolve incident")
		return
	}

	log.Info("incident resolved", "incident_id", id, "actor", view.ResolvedBy)
	apt.Respond(w, http.StatusOK, view, nil)
}

func (h *Handler) respondError(w http.ResponseWriter, log apt.Logger, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error(strings.ToLower(fallback), "error", err)
		apt.RespondError(w, status, fallback)
		return
	}
	log.Debug("request rejected", "status", status, "error", err)
	apt.RespondError(w, status, apperr.PublicMessage(err))
}

func (h *Handler) parseIncidentID(w http.ResponseWriter, r *http.Request) (IncidentID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid incident id.")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, kitchen.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

// rawNumber renders a JSON number or string body field for ParseWindowMinutes.
func rawNumber(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return num(n)
	default:
		return fmt.Sprint(n)
	}
}

func actorFrom(r *http.Request) kitchen.Actor {
	return kitchen.Actor{
		ID:   strings.TrimSpace(r.Header.Get(kitchen.HeaderActorID)),
		Role: strings.TrimSpace(r.Header.Get(kitchen.HeaderActorRole)),
	}
}
