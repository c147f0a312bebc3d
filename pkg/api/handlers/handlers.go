// Package handlers exposes the service operations over HTTP and websocket.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"dealerchat/pkg/apperr"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/events"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/service"
	"dealerchat/pkg/utils"
)

// Handlers binds HTTP routes to the service.
type Handlers struct {
	svc      *service.Service
	resolver *auth.Resolver
	bus      *events.Bus
	stream   StreamConfig
}

func New(svc *service.Service, resolver *auth.Resolver, bus *events.Bus, stream StreamConfig) *Handlers {
	return &Handlers{svc: svc, resolver: resolver, bus: bus, stream: stream.withDefaults()}
}

// Register mounts every route on r, which is expected to be the /v1 subrouter.
func (h *Handlers) Register(r *mux.Router) {
	h.registerChats(r)
	h.registerLeads(r)
	h.registerAdmin(r)
	h.registerSubscriptions(r)
	r.HandleFunc("/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/auth/revoke", h.revoke).Methods(http.MethodPost)
}

type errorBody struct {
	Error  string         `json:"error"`
	Code   apperr.Code    `json:"code"`
	Issues []apperr.Issue `json:"issues,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Wrap(err, "request failed").(*apperr.Error)
	}
	if ae.Code == apperr.Internal {
		logger.Error("request_failed", "method", r.Method, "path", r.URL.Path, "error", ae.Message)
		ae = apperr.New(apperr.Internal, "internal error")
	}
	_ = utils.JSONWrite(w, ae.Status, errorBody{Error: ae.Message, Code: ae.Code, Issues: ae.Issues})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	_ = utils.JSONWrite(w, status, v)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Invalid("invalid json")
	}
	return nil
}

func caller(r *http.Request) *auth.Identity { return auth.FromContext(r.Context()) }

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if id == nil {
		writeError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id.ID, "role": id.Role})
}

func (h *Handlers) revoke(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if id == nil {
		writeError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return
	}
	if err := h.resolver.Revoke(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
