package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"dealerchat/pkg/models"
)

func (h *Handlers) registerChats(r *mux.Router) {
	r.HandleFunc("/chats", h.myChats).Methods(http.MethodGet)
	r.HandleFunc("/chats/car", h.createCarChat).Methods(http.MethodPost)
	r.HandleFunc("/chats/support", h.createSupportChat).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}", h.getChat).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", h.chatMessages).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", h.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/assign", h.assignChat).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/close", h.closeChat).Methods(http.MethodPost)
	r.HandleFunc("/crm/chats", h.crmChats).Methods(http.MethodGet)
}

func (h *Handlers) myChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.svc.MyChats(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": nonNil(chats)})
}

func (h *Handlers) crmChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chats, err := h.svc.CRMChats(r.Context(), caller(r), models.ChatStatus(q.Get("status")), q.Get("unassigned") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": nonNil(chats)})
}

func (h *Handlers) createCarChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CarID string `json:"carId"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	chat, err := h.svc.CreateCarChat(r.Context(), caller(r), body.CarID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handlers) createSupportChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.CreateSupportChat(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handlers) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.Chat(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handlers) chatMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.ChatMessages(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": nonNil(msgs)})
}

func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), caller(r), mux.Vars(r)["id"], body.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) assignChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ManagerID string `json:"managerId"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	chat, err := h.svc.AssignChat(r.Context(), caller(r), mux.Vars(r)["id"], body.ManagerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handlers) closeChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.CloseChat(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
