package store

import (
	"sort"

	"dealerchat/pkg/models"
)

// SavePromotion persists p.
func (d *DB) SavePromotion(p models.Promotion) error {
	return putJSON(d, promoKey(p.ID), p)
}

// ListPromotions returns live promotions, newest first. With activeOnly set
// only promotions flagged active whose window contains at are returned.
func (d *DB) ListPromotions(activeOnly bool, at int64) ([]models.Promotion, error) {
	var out []models.Promotion
	err := scanJSON(d, promoPrefix, func(_ []byte, p models.Promotion) error {
		if p.IsDeleted() {
			return nil
		}
		if activeOnly && (!p.Active || at < p.StartsTS || at > p.EndsTS) {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	return out, nil
}
