package store

import (
	"sort"

	"dealerchat/pkg/models"
)

// CreateLead persists a new lead. The caller supplies ID and timestamps.
func (d *DB) CreateLead(l models.Lead) error {
	return putJSON(d, leadKey(l.ID), l)
}

// GetLead returns a live lead.
func (d *DB) GetLead(id string) (models.Lead, error) {
	return getLive[models.Lead](d, leadKey(id))
}

// UpdateLead applies fn to a live lead under its lock.
func (d *DB) UpdateLead(id string, fn func(*models.Lead) error) (models.Lead, error) {
	return mutate(d, leadKey(id), func(l *models.Lead) error {
		if err := fn(l); err != nil {
			return err
		}
		l.UpdatedTS = d.nowNanos()
		return nil
	})
}

// SoftDeleteLead hides a lead from reads.
func (d *DB) SoftDeleteLead(id string) (models.Lead, error) {
	return mutate(d, leadKey(id), func(l *models.Lead) error {
		now := d.nowNanos()
		l.Deleted = true
		l.DeletedTS = now
		l.UpdatedTS = now
		return nil
	})
}

// LeadFilter narrows ListLeads. Zero fields match everything.
type LeadFilter struct {
	CustomerID        string
	Status            models.LeadStatus
	AssignedManagerID string
}

// ListLeads returns live leads matching f, newest first.
func (d *DB) ListLeads(f LeadFilter) ([]models.Lead, error) {
	var out []models.Lead
	err := scanJSON(d, leadPrefix, func(_ []byte, l models.Lead) error {
		switch {
		case l.IsDeleted():
		case f.CustomerID != "" && l.CustomerID != f.CustomerID:
		case f.Status != "" && l.Status != f.Status:
		case f.AssignedManagerID != "" && l.AssignedManagerID != f.AssignedManagerID:
		default:
			out = append(out, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	return out, nil
}
