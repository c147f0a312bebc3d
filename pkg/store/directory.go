package store

import (
	"errors"

	"dealerchat/pkg/models"
)

// GetUser returns a user record including soft-deleted ones, so callers
// can tell a removed user from an unknown one.
func (d *DB) GetUser(id string) (models.User, error) {
	return getJSON[models.User](d, userKey(id))
}

// EnsureUser returns the stored user or creates it with role.
func (d *DB) EnsureUser(id string, role models.Role) (models.User, bool, error) {
	key := userKey(id)
	unlock := d.locks.lock(key)
	defer unlock()
	u, err := getJSON[models.User](d, key)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return u, false, err
	}
	now := d.nowNanos()
	u = models.User{ID: id, Role: role, CreatedTS: now, UpdatedTS: now}
	if err := putJSON(d, key, u); err != nil {
		return models.User{}, false, err
	}
	return u, true, nil
}

// SaveUser upserts a user.
func (d *DB) SaveUser(u models.User) error {
	if u.CreatedTS == 0 {
		u.CreatedTS = d.nowNanos()
	}
	u.UpdatedTS = d.nowNanos()
	return putJSON(d, userKey(u.ID), u)
}

// SetUserRole changes a live user's role.
func (d *DB) SetUserRole(id string, role models.Role) (models.User, error) {
	return mutate(d, userKey(id), func(u *models.User) error {
		u.Role = role
		u.UpdatedTS = d.nowNanos()
		return nil
	})
}

// SoftDeleteUser marks a user deleted.
func (d *DB) SoftDeleteUser(id string) (models.User, error) {
	return mutate(d, userKey(id), func(u *models.User) error {
		now := d.nowNanos()
		u.Deleted = true
		u.DeletedTS = now
		u.UpdatedTS = now
		return nil
	})
}

// UsersByRole returns live users holding any of roles.
func (d *DB) UsersByRole(roles ...models.Role) ([]models.User, error) {
	want := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	var out []models.User
	err := scanJSON(d, userPrefix, func(_ []byte, u models.User) error {
		if !u.IsDeleted() && want[u.Role] {
			out = append(out, u)
		}
		return nil
	})
	return out, err
}

// GetCar returns a live car.
func (d *DB) GetCar(id string) (models.Car, error) {
	return getLive[models.Car](d, carKey(id))
}

// SaveCar upserts a car, reviving it if it was soft-deleted.
func (d *DB) SaveCar(c models.Car) (models.Car, error) {
	key := carKey(c.ID)
	unlock := d.locks.lock(key)
	defer unlock()
	if c.Status == "" {
		c.Status = models.CarAvailable
	}
	c.Deleted = false
	c.DeletedTS = 0
	c.UpdatedTS = d.nowNanos()
	return c, putJSON(d, key, c)
}

// SoftDeleteCar marks a car deleted.
func (d *DB) SoftDeleteCar(id string) (models.Car, error) {
	return mutate(d, carKey(id), func(c *models.Car) error {
		now := d.nowNanos()
		c.Deleted = true
		c.DeletedTS = now
		c.UpdatedTS = now
		return nil
	})
}

// ListCars returns live cars in id order.
func (d *DB) ListCars() ([]models.Car, error) {
	var out []models.Car
	err := scanJSON(d, carPrefix, func(_ []byte, c models.Car) error {
		if !c.IsDeleted() {
			out = append(out, c)
		}
		return nil
	})
	return out, err
}
