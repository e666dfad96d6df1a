package kitchen

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/appetiteclub/kitchenops/internal/apperr"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

// Actor headers set by the gateway after authentication.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type Handler struct {
	service *Service
	logger  apt.Logger
	config  *apt.Config
	tlm     *telemetry.HTTP
}

type HandlerDeps struct {
	Service *Service
}

func NewHandler(hd HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		service: hd.Service,
		logger:  logger,
		config:  config,
		tlm:     telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/kitchen", func(r chi.Router) {
		r.Get("/stations", h.ListStations)
		r.Post("/stations", h.UpsertStation)
		r.Post("/stations/bootstrap", h.BootstrapStations)

		r.Get("/tickets", h.ListTickets)
		r.Get("/tickets/{id}", h.GetTicket)
		r.Patch("/tickets/{id}/status", h.UpdateTicketStatus)
		r.Patch("/tickets/{id}/priority", h.UpdateTicketPriority)
		r.Patch("/tickets/{id}/items/{itemID}/status", h.UpdateItemStatus)
		r.Post("/tickets/{id}/expedite", h.RequestExpedite)
		r.Post("/tickets/{id}/handoff", h.ConfirmHandoff)

		r.Get("/board", h.Board)
		r.Get("/stats", h.Stats)
		r.Get("/replay", h.Replay)
	})
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListStations")
	defer finish()
	log := h.log(r)

	q := r.URL.Query()
	stations, err := h.service.ListStations(r.Context(), q.Get("location_id"), q.Get("status"))
	if err != nil {
		h.respondError(w, log, err, "Could not list stations")
		return
	}

	apt.RespondCollection(w, stations, "station")
}

func (h *Handler) UpsertStation(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpsertStation")
	defer finish()
	log := h.log(r)

	var in StationInput
	if !h.decode(w, r, &in) {
		return
	}

	st, err := h.service.UpsertStation(r.Context(), in)
	if err != nil {
		h.respondError(w, log, err, "Could not upsert station")
		return
	}

	apt.RespondSuccess(w, st)
}

func (h *Handler) BootstrapStations(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.BootstrapStations")
	defer finish()
	log := h.log(r)

	var in struct {
		LocationID string `json:"location_id"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	stations, err := h.service.BootstrapStations(r.Context(), in.LocationID)
	if err != nil {
		h.respondError(w, log, err, "Could not bootstrap stations")
		return
	}

	log.Info("kitchen stations bootstrapped", "location_id", NormalizeLocationID(in.LocationID))
	apt.Respond(w, http.StatusOK, map[string]interface{}{
		"stations": stations,
	}, nil)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTickets")
	defer finish()
	log := h.log(r)

	q := r.URL.Query()
	page, err := h.service.List(r.Context(), ListParams{
		LocationID:  q.Get("location_id"),
		Status:      q.Get("status"),
		Priority:    q.Get("priority"),
		StationCode: q.Get("station_code"),
		Limit:       q.Get("limit"),
		Offset:      q.Get("offset"),
	})
	if err != nil {
		h.respondError(w, log, err, "Could not list tickets")
		return
	}

	apt.Respond(w, http.StatusOK, page, nil)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetTicket")
	defer finish()
	log := h.log(r)

	id, ok := h.parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, log, err, "Could not load ticket")
		return
	}

	apt.Respond(w, http.StatusOK, detail, nil)
}

func (h *Handler) UpdateTicketStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateTicketStatus")
	defer finish()
	log := h.log(r)

	id, ok := h.parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var in struct {
		Status string `json:"status"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	t, err := h.service.SetStatus(r.Context(), id, in.Status, actorFrom(r))
	if err != nil {
		h.respondError(w, log, err, "Could not update ticket status")
		return
	}

	h.respondTicket(w, t)
}

func (h *Handler) UpdateTicketPriority(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateTicketPriority")
	defer finish()
	log := h.log(r)

	id, ok := h.parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var in struct {
		Priority string `json:"priority"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	t, err := h.service.SetPriority(r.Context(), id, in.Priority, actorFrom(r))
	if err != nil {
		h.respondError(w, log, err, "Could not update ticket priority")
		return
	}

	h.respondTicket(w, t)
}

func (h *Handler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateItemStatus")
	defer finish()
	log := h.log(r)

	id, ok := h.parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.parseUUIDParam(w, r, "itemID")
	if !ok {
		return
	}

	var in struct {
		Status string `json:"status"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	t, err := h.service.SetItemStatus(r.Context(), id, itemID, in.Status, actorFrom(r))
	if err != nil {
		h.respondError(w, log, err, "Could not update item status")
		return
	}

	h.respondTicket(w, t)
}

func (h *Handler) RequestExpedite(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RequestExpedite")
	defer finish()
	log := h.log(r)

	id, ok := h.parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var in struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	t, err := h.service.RequestExpedite(r.Context(), id, in.Reason, actorFrom(r))
	if err != nil {
		h.respondError(w, log, err, "Could not expedite ticket")
		return
	}

	h.respondTicket(w, t)
}

func (h *Handler) ConfirmHandoff(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ConfirmHandoff")
	defer finish()
	log := h.log(r)

	id, ok := h.parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var in struct {
		Stage string `json:"stage"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	t, err := h.service.ConfirmHandoff(r.Context(), id, in.Stage, actorFrom(r))
	if err != nil {
		h.respondError(w, log, err, "Could not confirm handoff")
		return
	}

	h.respondTicket(w, t)
}

func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Board")
	defer finish()
	log := h.log(r)

	cols, err := h.service.Board(r.Context(), r.URL.Query().Get("location_id"))
	if err != nil {
		h.respondError(w, log, err, "Could not load kitchen board")
		return
	}

	apt.Respond(w, http.StatusOK, map[string]interface{}{
		"columns": cols,
	}, nil)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Stats")
	defer finish()
	log := h.log(r)

	stats, err := h.service.Stats(r.Context(), r.URL.Query().Get("location_id"))
	if err != nil {
		h.respondError(w, log, err, "Could not compute kitchen stats")
		return
	}

	apt.Respond(w, http.StatusOK, stats, nil)
}

func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Replay")
	defer finish()
	log := h.log(r)

	q := r.URL.Query()
	types := q.Get("event_type")
	if types == "" {
		types = q.Get("event_types")
	}

	res, err := h.service.Replay(r.Context(), ReplayParams{
		LocationID: q.Get("location_id"),
		TicketID:   q.Get("ticket_id"),
		OrderID:    q.Get("order_id"),
		EventTypes: types,
		From:       q.Get("from"),
		To:         q.Get("to"),
		Limit:      q.Get("limit"),
		Offset:     q.Get("offset"),
	})
	if err != nil {
		h.respondError(w, log, err, "Could not replay kitchen events")
		return
	}

	apt.Respond(w, http.StatusOK, res, nil)
}

func (h *Handler) respondTicket(w http.ResponseWriter, t *Ticket) {
	apt.Respond(w, http.StatusOK, h.service.View(*t, h.service.now()), nil)
}

// respondError maps classified errors to their status and hides the rest.
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

func (h *Handler) parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid "+name+" parameter")
		return uuid.Nil, false
	}
	return id, true
}

// decode reads an optional JSON body into dst.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
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

func actorFrom(r *http.Request) Actor {
	return Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Role: strings.TrimSpace(r.Header.Get(HeaderActorRole)),
	}
}
