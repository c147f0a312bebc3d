package service

import (
	"context"

	"dealerchat/pkg/access"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/events"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
	"dealerchat/pkg/utils"
	"dealerchat/pkg/validation"
)

// CreateAppointment schedules the single visit of a live lead. A second
// appointment for the same lead is a conflict. The lead status is left as is.
func (s *Service) CreateAppointment(ctx context.Context, caller *auth.Identity, in validation.CreateAppointment) (models.Appointment, error) {
	if err := access.Require(caller, access.CanManageLeads(caller)); err != nil {
		return models.Appointment{}, err
	}
	if err := validation.Check(in); err != nil {
		return models.Appointment{}, err
	}
	lead, err := s.db.GetLead(in.LeadID)
	if err != nil {
		return models.Appointment{}, storeErr(err, "lead")
	}
	if _, err := s.liveStaff(in.ManagerID); err != nil {
		return models.Appointment{}, err
	}

	now := s.nowNanos()
	appt := models.Appointment{
		ID:          utils.GenID("appt"),
		LeadID:      lead.ID,
		ManagerID:   in.ManagerID,
		TS:          in.TS,
		Location:    in.Location,
		Note:        in.Note,
		Status:      models.AppointmentScheduled,
		CreatedByID: caller.ID,
		CreatedTS:   now,
		UpdatedTS:   now,
	}
	if err := s.db.CreateAppointment(appt); err != nil {
		return models.Appointment{}, storeErr(err, "appointment")
	}
	logger.AuditEvent("appointment_created", caller.ID, "lead", lead.ID, "appointment", appt.ID, "manager", in.ManagerID)
	events.Publish(s.bus, events.TopicLeadUpdated, events.LeadUpdated{Lead: lead})
	return appt, nil
}

// Appointment returns the appointment of a lead the caller may read.
func (s *Service) Appointment(ctx context.Context, caller *auth.Identity, leadID string) (models.Appointment, error) {
	if _, err := s.Lead(ctx, caller, leadID); err != nil {
		return models.Appointment{}, err
	}
	appt, err := s.db.GetAppointment(leadID)
	return appt, storeErr(err, "appointment")
}
