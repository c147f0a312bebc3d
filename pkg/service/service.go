// Package service implements the dealership chat and lead workflows:
// access check, input validation, store mutation, then event publish and
// notification fan-out once the write is committed.
package service

import (
	"errors"
	"time"

	"dealerchat/pkg/apperr"
	"dealerchat/pkg/events"
	"dealerchat/pkg/models"
	"dealerchat/pkg/notify"
	"dealerchat/pkg/store"
)

// Service holds the collaborators every operation needs.
type Service struct {
	db     *store.DB
	bus    *events.Bus
	router *notify.Router
	now    func() time.Time
}

func New(db *store.DB, bus *events.Bus, router *notify.Router) *Service {
	return &Service{db: db, bus: bus, router: router, now: time.Now}
}

func (s *Service) nowNanos() int64 { return s.now().UTC().UnixNano() }

// storeErr maps store sentinels onto the taxonomy.
func storeErr(err error, what string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.New(apperr.NotFound, what+" not found")
	case errors.Is(err, store.ErrChatClosed):
		return apperr.New(apperr.ChatClosed, "chat is closed")
	case errors.Is(err, store.ErrConflict):
		return apperr.New(apperr.Conflict, what+" already exists")
	case errors.Is(err, events.ErrClosed):
		return apperr.New(apperr.Internal, "event bus is shut down")
	}
	return apperr.Wrap(err, what)
}

// liveStaff returns the user behind managerID when it is a live manager or
// admin.
func (s *Service) liveStaff(managerID string) (models.User, error) {
	u, err := s.db.GetUser(managerID)
	if err != nil {
		return u, storeErr(err, "manager")
	}
	if u.IsDeleted() || !u.Role.Staff() {
		return u, apperr.New(apperr.NotFound, "manager not found")
	}
	return u, nil
}
