package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"dealerchat/pkg/apperr"
	"dealerchat/pkg/events"
	"dealerchat/pkg/models"
	"dealerchat/pkg/validation"
)

func (h *Handlers) registerAdmin(r *mux.Router) {
	r.HandleFunc("/promotions", h.promotions).Methods(http.MethodGet)
	r.HandleFunc("/promotions", h.createPromotion).Methods(http.MethodPost)

	r.HandleFunc("/admin/users", h.users).Methods(http.MethodGet)
	r.HandleFunc("/admin/users/{id}/role", h.setUserRole).Methods(http.MethodPut)
	r.HandleFunc("/admin/users/{id}", h.deleteUser).Methods(http.MethodDelete)
	r.HandleFunc("/admin/cars/{id}", h.upsertCar).Methods(http.MethodPut)
	r.HandleFunc("/admin/cars/{id}", h.deleteCar).Methods(http.MethodDelete)
	r.HandleFunc("/admin/chats/{id}", h.deleteChat).Methods(http.MethodDelete)
	r.HandleFunc("/admin/chats/{id}/messages/{msgId}", h.redactMessage).Methods(http.MethodDelete)
	r.HandleFunc("/admin/bus", h.busStats).Methods(http.MethodGet)
}

func (h *Handlers) promotions(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.Promotions(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"promotions": nonNil(ps)})
}

func (h *Handlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	var in validation.CreatePromotion
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.CreatePromotion(r.Context(), caller(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) setUserRole(w http.ResponseWriter, r *http.Request) {
	var in validation.SetUserRole
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.UserID = mux.Vars(r)["id"]
	u, err := h.svc.SetUserRole(r.Context(), caller(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handlers) users(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users(r.Context(), caller(r), models.Role(r.URL.Query().Get("role")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": nonNil(users)})
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.DeleteUser(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handlers) upsertCar(w http.ResponseWriter, r *http.Request) {
	var in validation.UpsertCar
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.ID = mux.Vars(r)["id"]
	car, err := h.svc.UpsertCar(r.Context(), caller(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (h *Handlers) deleteCar(w http.ResponseWriter, r *http.Request) {
	car, err := h.svc.DeleteCar(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (h *Handlers) deleteChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.DeleteChat(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handlers) redactMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	msg, err := h.svc.RedactMessage(r.Context(), caller(r), vars["id"], vars["msgId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handlers) busStats(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if id == nil {
		writeError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return
	}
	if !id.IsAdmin() {
		writeError(w, r, apperr.New(apperr.Forbidden, "forbidden"))
		return
	}
	out := make([]events.TopicStats, 0, len(events.TopicNames()))
	for _, t := range events.TopicNames() {
		out = append(out, h.bus.Stats(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": out})
}
