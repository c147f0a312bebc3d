package models

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCanceled  AppointmentStatus = "CANCELED"
)

// Appointment is a scheduled visit for a lead. A lead has at most one live
// appointment.
type Appointment struct {
	ID          string            `json:"id"`
	LeadID      string            `json:"leadId"`
	ManagerID   string            `json:"managerId"`
	TS          int64             `json:"dateTimeTs"`
	Location    string            `json:"location"`
	Note        string            `json:"note,omitempty"`
	Status      AppointmentStatus `json:"status"`
	CreatedByID string            `json:"createdById"`
	CreatedTS   int64             `json:"createdTs"`
	UpdatedTS   int64             `json:"updatedTs"`
	Deleted     bool              `json:"deleted,omitempty"`
	DeletedTS   int64             `json:"deletedTs,omitempty"`
}

func (a Appointment) IsDeleted() bool { return a.Deleted }
