package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"dealerchat/pkg/models"
	"dealerchat/pkg/validation"
)

func (h *Handlers) registerLeads(r *mux.Router) {
	r.HandleFunc("/leads", h.createLead).Methods(http.MethodPost)
	r.HandleFunc("/leads", h.myLeads).Methods(http.MethodGet)
	r.HandleFunc("/leads/{id}", h.getLead).Methods(http.MethodGet)
	r.HandleFunc("/leads/{id}/assign", h.assignLead).Methods(http.MethodPost)
	r.HandleFunc("/leads/{id}/status", h.updateLeadStatus).Methods(http.MethodPost)
	r.HandleFunc("/leads/{id}/appointment", h.createAppointment).Methods(http.MethodPost)
	r.HandleFunc("/leads/{id}/appointment", h.getAppointment).Methods(http.MethodGet)
	r.HandleFunc("/crm/leads", h.crmLeads).Methods(http.MethodGet)
}

func (h *Handlers) createLead(w http.ResponseWriter, r *http.Request) {
	var in validation.CreateLead
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	lead, err := h.svc.CreateLead(r.Context(), caller(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (h *Handlers) myLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.svc.MyLeads(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": nonNil(leads)})
}

func (h *Handlers) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.svc.Lead(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *Handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var in validation.CreateAppointment
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.LeadID = mux.Vars(r)["id"]
	appt, err := h.svc.CreateAppointment(r.Context(), caller(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Appointment(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handlers) crmLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leads, err := h.svc.CRMLeads(r.Context(), caller(r), models.LeadStatus(q.Get("status")), q.Get("assignedManagerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": nonNil(leads)})
}

func (h *Handlers) assignLead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ManagerID string `json:"managerId"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	lead, err := h.svc.AssignLead(r.Context(), caller(r), mux.Vars(r)["id"], body.ManagerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *Handlers) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var in validation.UpdateLeadStatus
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.LeadID = mux.Vars(r)["id"]
	lead, err := h.svc.UpdateLeadStatus(r.Context(), caller(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}
