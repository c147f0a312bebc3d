package service

import (
	"context"

	"dealerchat/pkg/access"
	"dealerchat/pkg/apperr"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/events"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
	"dealerchat/pkg/store"
	"dealerchat/pkg/utils"
	"dealerchat/pkg/validation"
)

// CreateLead records a customer request about a car and broadcasts it to
// every manager and admin.
func (s *Service) CreateLead(ctx context.Context, caller *auth.Identity, in validation.CreateLead) (models.Lead, error) {
	if err := access.Authenticated(caller); err != nil {
		return models.Lead{}, err
	}
	if err := validation.Check(in); err != nil {
		return models.Lead{}, err
	}
	if _, err := s.db.GetCar(in.CarID); err != nil {
		return models.Lead{}, storeErr(err, "car")
	}
	customer, err := s.db.GetUser(caller.ID)
	if err != nil || customer.IsDeleted() {
		return models.Lead{}, apperr.New(apperr.NotFound, "customer not found")
	}

	now := s.nowNanos()
	lead := models.Lead{
		ID:          utils.GenID("lead"),
		Type:        in.Type,
		Status:      models.LeadNew,
		CustomerID:  caller.ID,
		CarID:       in.CarID,
		PreferredTS: in.PreferredTS,
		Message:     in.Message,
		CreatedTS:   now,
		UpdatedTS:   now,
	}
	if err := s.db.CreateLead(lead); err != nil {
		return models.Lead{}, storeErr(err, "lead")
	}
	logger.Info("lead_created", "lead", lead.ID, "customer", caller.ID, "car", in.CarID, "type", string(in.Type))
	events.Publish(s.bus, events.TopicLeadUpdated, events.LeadUpdated{Lead: lead})
	s.router.LeadCreated(lead)
	return lead, nil
}

// AssignLead hands a lead to a manager and moves it to IN_PROGRESS.
func (s *Service) AssignLead(ctx context.Context, caller *auth.Identity, leadID, managerID string) (models.Lead, error) {
	if err := access.Require(caller, access.CanAssign(caller)); err != nil {
		return models.Lead{}, err
	}
	if err := validation.Check(validation.Assign{ID: leadID, ManagerID: managerID}); err != nil {
		return models.Lead{}, err
	}
	if _, err := s.db.GetLead(leadID); err != nil {
		return models.Lead{}, storeErr(err, "lead")
	}
	if _, err := s.liveStaff(managerID); err != nil {
		return models.Lead{}, err
	}
	lead, err := s.db.UpdateLead(leadID, func(l *models.Lead) error {
		l.AssignedManagerID = managerID
		l.Status = models.LeadInProgress
		return nil
	})
	if err != nil {
		return models.Lead{}, storeErr(err, "lead")
	}
	logger.AuditEvent("lead_assigned", caller.ID, "lead", leadID, "manager", managerID)
	events.Publish(s.bus, events.TopicLeadUpdated, events.LeadUpdated{Lead: lead})
	return lead, nil
}

// UpdateLeadStatus sets any status, from any status, with an optional
// manager comment, and tells the customer.
func (s *Service) UpdateLeadStatus(ctx context.Context, caller *auth.Identity, in validation.UpdateLeadStatus) (models.Lead, error) {
	if err := access.Require(caller, access.CanManageLeads(caller)); err != nil {
		return models.Lead{}, err
	}
	if err := validation.Check(in); err != nil {
		return models.Lead{}, err
	}
	lead, err := s.db.UpdateLead(in.LeadID, func(l *models.Lead) error {
		l.Status = in.Status
		if in.Comment != "" {
			l.ManagerComment = in.Comment
		}
		return nil
	})
	if err != nil {
		return models.Lead{}, storeErr(err, "lead")
	}
	logger.AuditEvent("lead_status_changed", caller.ID, "lead", lead.ID, "status", string(lead.Status))
	events.Publish(s.bus, events.TopicLeadUpdated, events.LeadUpdated{Lead: lead})
	s.router.LeadStatusChanged(lead)
	return lead, nil
}

// Lead returns one lead the caller may read.
func (s *Service) Lead(ctx context.Context, caller *auth.Identity, leadID string) (models.Lead, error) {
	if err := access.Authenticated(caller); err != nil {
		return models.Lead{}, err
	}
	lead, err := s.db.GetLead(leadID)
	if err != nil {
		return models.Lead{}, storeErr(err, "lead")
	}
	if err := access.Require(caller, access.CanReadLead(caller, lead)); err != nil {
		return models.Lead{}, err
	}
	return lead, nil
}

// MyLeads lists the caller's own leads, newest first.
func (s *Service) MyLeads(ctx context.Context, caller *auth.Identity) ([]models.Lead, error) {
	if err := access.Authenticated(caller); err != nil {
		return nil, err
	}
	leads, err := s.db.ListLeads(store.LeadFilter{CustomerID: caller.ID})
	return leads, storeErr(err, "leads")
}

// CRMLeads lists leads for staff, optionally by status and manager.
func (s *Service) CRMLeads(ctx context.Context, caller *auth.Identity, status models.LeadStatus, managerID string) ([]models.Lead, error) {
	if err := access.Require(caller, access.CanManageLeads(caller)); err != nil {
		return nil, err
	}
	switch status {
	case "", models.LeadNew, models.LeadInProgress, models.LeadApproved, models.LeadRejected:
	default:
		msg := "status must be one of NEW, IN_PROGRESS, APPROVED, REJECTED"
		return nil, apperr.Invalid(msg, apperr.Issue{Path: "status", Message: msg})
	}
	leads, err := s.db.ListLeads(store.LeadFilter{Status: status, AssignedManagerID: managerID})
	return leads, storeErr(err, "leads")
}
