package store

import (
	"errors"

	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
)

// CreateAppointment stores a for its lead. A live appointment for the same
// lead yields ErrConflict; a soft-deleted one is replaced.
func (d *DB) CreateAppointment(a models.Appointment) error {
	key := apptKey(a.LeadID)
	unlock := d.locks.lock(key)
	defer unlock()

	_, err := getLive[models.Appointment](d, key)
	switch {
	case err == nil:
		return ErrConflict
	case !errors.Is(err, ErrNotFound):
		return err
	}
	if err := putJSON(d, key, a); err != nil {
		return err
	}
	logger.Info("appointment_created", "appointment", a.ID, "lead", a.LeadID, "manager", a.ManagerID)
	return nil
}

// GetAppointment returns the live appointment of a lead.
func (d *DB) GetAppointment(leadID string) (models.Appointment, error) {
	return getLive[models.Appointment](d, apptKey(leadID))
}
