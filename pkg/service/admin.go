package service

import (
	"context"

	"dealerchat/pkg/access"
	"dealerchat/pkg/apperr"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/events"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
	"dealerchat/pkg/utils"
	"dealerchat/pkg/validation"
)

// CreatePromotion stores a promotion and broadcasts it.
func (s *Service) CreatePromotion(ctx context.Context, caller *auth.Identity, in validation.CreatePromotion) (models.Promotion, error) {
	if err := access.Require(caller, access.CanAssign(caller)); err != nil {
		return models.Promotion{}, err
	}
	if err := validation.Check(in); err != nil {
		return models.Promotion{}, err
	}
	p := models.Promotion{
		ID:              utils.GenID("promo"),
		Title:           in.Title,
		Description:     in.Description,
		DiscountPercent: in.DiscountPercent,
		StartsTS:        in.StartsTS,
		EndsTS:          in.EndsTS,
		Active:          in.Active,
		CreatedByID:     caller.ID,
		CreatedTS:       s.nowNanos(),
	}
	if err := s.db.SavePromotion(p); err != nil {
		return models.Promotion{}, storeErr(err, "promotion")
	}
	logger.AuditEvent("promotion_created", caller.ID, "promotion", p.ID)
	events.Publish(s.bus, events.TopicPromotion, events.PromotionPublished{Promotion: p})
	return p, nil
}

// Promotions lists promotions; anyone may read them.
func (s *Service) Promotions(ctx context.Context, activeOnly bool) ([]models.Promotion, error) {
	ps, err := s.db.ListPromotions(activeOnly, s.nowNanos())
	return ps, storeErr(err, "promotions")
}

// SetUserRole changes another user's role.
func (s *Service) SetUserRole(ctx context.Context, caller *auth.Identity, in validation.SetUserRole) (models.User, error) {
	if err := access.Require(caller, access.CanAssign(caller)); err != nil {
		return models.User{}, err
	}
	if err := validation.Check(in); err != nil {
		return models.User{}, err
	}
	if in.UserID == caller.ID {
		return models.User{}, apperr.New(apperr.Forbidden, "admins cannot change their own role")
	}
	u, err := s.db.SetUserRole(in.UserID, in.Role)
	if err != nil {
		return models.User{}, storeErr(err, "user")
	}
	logger.AuditEvent("user_role_changed", caller.ID, "user", in.UserID, "role", string(in.Role))
	return u, nil
}

// Users lists live users, optionally only those holding role.
func (s *Service) Users(ctx context.Context, caller *auth.Identity, role models.Role) ([]models.User, error) {
	if err := access.Require(caller, access.CanAssign(caller)); err != nil {
		return nil, err
	}
	roles := []models.Role{models.RoleClient, models.RoleManager, models.RoleAdmin}
	switch role {
	case "":
	case models.RoleClient, models.RoleManager, models.RoleAdmin:
		roles = []models.Role{role}
	default:
		msg := "role must be one of CLIENT, MANAGER, ADMIN"
		return nil, apperr.Invalid(msg, apperr.Issue{Path: "role", Message: msg})
	}
	users, err := s.db.UsersByRole(roles...)
	return users, storeErr(err, "users")
}

// DeleteUser soft-deletes a user; their tokens stop resolving.
func (s *Service) DeleteUser(ctx context.Context, caller *auth.Identity, userID string) (models.User, error) {
	if err := access.Require(caller, access.CanAssign(caller)); err != nil {
		return models.User{}, err
	}
	if userID == caller.ID {
		return models.User{}, apperr.New(apperr.Forbidden, "admins cannot delete themselves")
	}
	u, err := s.db.SoftDeleteUser(userID)
	if err != nil {
		return models.User{}, storeErr(err, "user")
	}
	logger.AuditEvent("user_deleted", caller.ID, "user", userID)
	return u, nil
}

// UpsertCar creates or replaces a catalog entry.
func (s *Service) UpsertCar(ctx context.Context, caller *auth.Identity, in validation.UpsertCar) (models.Car, error) {
	if err := access.Require(caller, access.CanManageLeads(caller)); err != nil {
		return models.Car{}, err
	}
	if err := validation.Check(in); err != nil {
		return models.Car{}, err
	}
	car, err := s.db.SaveCar(models.Car{ID: in.ID, Title: in.Title, Status: in.Status})
	if err != nil {
		return models.Car{}, storeErr(err, "car")
	}
	return car, nil
}

// DeleteCar soft-deletes a car.
func (s *Service) DeleteCar(ctx context.Context, caller *auth.Identity, carID string) (models.Car, error) {
	if err := access.Require(caller, access.CanManageLeads(caller)); err != nil {
		return models.Car{}, err
	}
	car, err := s.db.SoftDeleteCar(carID)
	if err != nil {
		return models.Car{}, storeErr(err, "car")
	}
	logger.AuditEvent("car_deleted", caller.ID, "car", carID)
	return car, nil
}

// DeleteChat hides a chat and its messages from every read.
func (s *Service) DeleteChat(ctx context.Context, caller *auth.Identity, chatID string) (models.Chat, error) {
	if err := access.Require(caller, access.CanAssign(caller)); err != nil {
		return models.Chat{}, err
	}
	chat, err := s.db.SoftDeleteChat(chatID)
	if err != nil {
		return models.Chat{}, storeErr(err, "chat")
	}
	logger.AuditEvent("chat_deleted", caller.ID, "chat", chatID)
	return chat, nil
}

// RedactMessage sets the compliance flag on one message.
func (s *Service) RedactMessage(ctx context.Context, caller *auth.Identity, chatID, msgID string) (models.Message, error) {
	if err := access.Require(caller, access.CanAssign(caller)); err != nil {
		return models.Message{}, err
	}
	msg, err := s.db.RedactMessage(chatID, msgID)
	if err != nil {
		return models.Message{}, storeErr(err, "message")
	}
	logger.AuditEvent("message_redacted", caller.ID, "chat", chatID, "message", msgID)
	return msg, nil
}
