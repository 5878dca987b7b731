package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/outlinehq/go-outline-editor/outline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type handler struct {
	svc *outline.Service
	hub *Hub
	log zerolog.Logger
}

// NewHandler builds the HTTP surface: a REST API over the outline service
// plus the websocket endpoint for live sessions.
func NewHandler(svc *outline.Service, hub *Hub, logger zerolog.Logger) http.Handler {
	h := &handler{
		svc: svc,
		hub: hub,
		log: logger.With().Str("component", "http").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.serveWS)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/documents/{id}/outline", h.getOutline).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/children", h.getRootChildren).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/nodes", h.insertNode).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/nodes/{nodeId}", h.getNode).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/nodes/{nodeId}", h.updateContent).Methods(http.MethodPatch)
	api.HandleFunc("/documents/{id}/nodes/{nodeId}", h.deleteNode).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/nodes/{nodeId}/move", h.moveNode).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/nodes/{nodeId}/next", h.getNext).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/nodes/{nodeId}/children", h.getChildren).Methods(http.MethodGet)

	return r
}

type insertRequest struct {
	ParentID *uuid.UUID `json:"parentId"`
	PrevID   *uuid.UUID `json:"prevId"`
	Content  string     `json:"content"`
}

type moveRequest struct {
	ParentID *uuid.UUID `json:"parentId"`
	PrevID   *uuid.UUID `json:"prevId"`
}

type updateRequest struct {
	Content string `json:"content"`
}

// nextResponse keeps nextId explicit so a tail node serializes as null.
type nextResponse struct {
	NextID *uuid.UUID `json:"nextId"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade")
		return
	}
	client := newClient(h.hub, conn)
	go client.WritePump()
	go client.ReadPump()
}

func (h *handler) getOutline(w http.ResponseWriter, r *http.Request) {
	docID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	nodes, err := h.svc.Outline(r.Context(), docID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nodes)
}

func (h *handler) getRootChildren(w http.ResponseWriter, r *http.Request) {
	docID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	nodes, err := h.svc.OrderedChildren(r.Context(), docID, nil)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nodes)
}

func (h *handler) getChildren(w http.ResponseWriter, r *http.Request) {
	docID, nodeID, err := pathIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	nodes, err := h.svc.OrderedChildren(r.Context(), docID, &nodeID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nodes)
}

func (h *handler) getNode(w http.ResponseWriter, r *http.Request) {
	docID, nodeID, err := pathIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	node, err := h.svc.GetNode(r.Context(), docID, nodeID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, node)
}

func (h *handler) getNext(w http.ResponseWriter, r *http.Request) {
	docID, nodeID, err := pathIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	nextID, err := h.svc.NextID(r.Context(), docID, nodeID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nextResponse{NextID: nextID})
}

func (h *handler) insertNode(w http.ResponseWriter, r *http.Request) {
	docID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, err := h.svc.InsertNode(r.Context(), docID, req.ParentID, req.PrevID, req.Content)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, eventMessage(ev))
}

func (h *handler) moveNode(w http.ResponseWriter, r *http.Request) {
	docID, nodeID, err := pathIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, err := h.svc.MoveNode(r.Context(), docID, nodeID, req.ParentID, req.PrevID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, eventMessage(ev))
}

func (h *handler) updateContent(w http.ResponseWriter, r *http.Request) {
	docID, nodeID, err := pathIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, err := h.svc.UpdateContent(r.Context(), docID, nodeID, req.Content)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, eventMessage(ev))
}

func (h *handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	docID, nodeID, err := pathIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	policy, err := parsePolicy(r.URL.Query().Get("children"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid children policy")
		return
	}
	ev, err := h.svc.DeleteNode(r.Context(), docID, nodeID, policy)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, eventMessage(ev))
}

func (h *handler) respondServiceError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	respondError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, outline.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, outline.ErrInvalidPosition), errors.Is(err, outline.ErrCycle):
		return http.StatusConflict
	case errors.Is(err, outline.ErrDocumentUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)[name])
}

func pathIDs(r *http.Request) (docID, nodeID uuid.UUID, err error) {
	docID, err = pathUUID(r, "id")
	if err != nil {
		return uuid.UUID{}, uuid.UUID{}, errors.New("invalid document id")
	}
	nodeID, err = pathUUID(r, "nodeId")
	if err != nil {
		return uuid.UUID{}, uuid.UUID{}, errors.New("invalid node id")
	}
	return docID, nodeID, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
