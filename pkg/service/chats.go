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
	"dealerchat/pkg/telemetry"
	"dealerchat/pkg/validation"
)

// SendMessage appends a text message to a chat the caller may write to.
func (s *Service) SendMessage(ctx context.Context, caller *auth.Identity, chatID, text string) (models.Message, error) {
	if err := access.Authenticated(caller); err != nil {
		return models.Message{}, err
	}
	if err := validation.Check(validation.SendMessage{ChatID: chatID, Text: text}); err != nil {
		return models.Message{}, err
	}
	chat, err := s.db.GetChat(chatID)
	if err != nil {
		return models.Message{}, storeErr(err, "chat")
	}
	if err := access.Require(caller, access.CanWriteChat(caller, chat)); err != nil {
		return models.Message{}, err
	}
	if chat.Status == models.ChatClosed {
		return models.Message{}, apperr.New(apperr.ChatClosed, "chat is closed")
	}

	end := telemetry.StartSpan(ctx, "store.append_message")
	msg, chat, err := s.db.AppendMessage(chatID, caller.ID, text, models.KindText)
	end()
	if err != nil {
		return models.Message{}, storeErr(err, "chat")
	}
	events.Publish(s.bus, events.TopicMessageAdded, events.MessageAdded{Message: msg})
	s.router.MessageAdded(chat)
	return msg, nil
}

// CreateCarChat returns the caller's open chat about carID, creating it if
// needed.
func (s *Service) CreateCarChat(ctx context.Context, caller *auth.Identity, carID string) (models.Chat, error) {
	if err := access.Authenticated(caller); err != nil {
		return models.Chat{}, err
	}
	if carID == "" {
		return models.Chat{}, apperr.Invalid("carId is required", apperr.Issue{Path: "carId", Message: "carId is required"})
	}
	if _, err := s.db.GetCar(carID); err != nil {
		return models.Chat{}, storeErr(err, "car")
	}
	return s.findOrCreate(caller, carID)
}

// CreateSupportChat returns the caller's open support chat.
func (s *Service) CreateSupportChat(ctx context.Context, caller *auth.Identity) (models.Chat, error) {
	if err := access.Authenticated(caller); err != nil {
		return models.Chat{}, err
	}
	return s.findOrCreate(caller, "")
}

func (s *Service) findOrCreate(caller *auth.Identity, carID string) (models.Chat, error) {
	chat, created, err := s.db.FindOrCreateChat(caller.ID, carID)
	if err != nil {
		return models.Chat{}, storeErr(err, "chat")
	}
	if created {
		logger.Info("chat_opened", "chat", chat.ID, "customer", caller.ID, "support", chat.IsSupport())
	}
	return chat, nil
}

// Chat returns one chat the caller may read.
func (s *Service) Chat(ctx context.Context, caller *auth.Identity, chatID string) (models.Chat, error) {
	if err := access.Authenticated(caller); err != nil {
		return models.Chat{}, err
	}
	chat, err := s.db.GetChat(chatID)
	if err != nil {
		return models.Chat{}, storeErr(err, "chat")
	}
	if err := access.Require(caller, access.CanReadChat(caller, chat)); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// MyChats lists a customer's own chats, or the chats assigned to a staff
// member.
func (s *Service) MyChats(ctx context.Context, caller *auth.Identity) ([]models.Chat, error) {
	if err := access.Authenticated(caller); err != nil {
		return nil, err
	}
	f := store.ChatFilter{CustomerID: caller.ID}
	if caller.IsStaff() {
		f = store.ChatFilter{ManagerID: caller.ID}
	}
	chats, err := s.db.ListChats(f)
	return chats, storeErr(err, "chats")
}

// CRMChats is the staff inbox over every chat.
func (s *Service) CRMChats(ctx context.Context, caller *auth.Identity, status models.ChatStatus, unassignedOnly bool) ([]models.Chat, error) {
	if err := access.Require(caller, access.CanManageLeads(caller)); err != nil {
		return nil, err
	}
	if status != "" && status != models.ChatOpen && status != models.ChatClosed {
		return nil, apperr.Invalid("status must be one of OPEN, CLOSED", apperr.Issue{Path: "status", Message: "status must be one of OPEN, CLOSED"})
	}
	chats, err := s.db.ListChats(store.ChatFilter{Status: status, UnassignedOnly: unassignedOnly})
	return chats, storeErr(err, "chats")
}

// ChatMessages returns the live messages of a readable chat in order.
func (s *Service) ChatMessages(ctx context.Context, caller *auth.Identity, chatID string) ([]models.Message, error) {
	if _, err := s.Chat(ctx, caller, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.db.ListMessages(chatID)
	return msgs, storeErr(err, "chat")
}

// AssignChat staffs an open chat with a manager and notifies them.
func (s *Service) AssignChat(ctx context.Context, caller *auth.Identity, chatID, managerID string) (models.Chat, error) {
	if err := access.Require(caller, access.CanAssign(caller)); err != nil {
		return models.Chat{}, err
	}
	if err := validation.Check(validation.Assign{ID: chatID, ManagerID: managerID}); err != nil {
		return models.Chat{}, err
	}
	chat, err := s.db.GetChat(chatID)
	if err != nil {
		return models.Chat{}, storeErr(err, "chat")
	}
	if chat.Status == models.ChatClosed {
		return models.Chat{}, apperr.New(apperr.ChatClosed, "chat is closed")
	}
	if _, err := s.liveStaff(managerID); err != nil {
		return models.Chat{}, err
	}
	chat, err = s.db.AssignChat(chatID, managerID)
	if err != nil {
		return models.Chat{}, storeErr(err, "chat")
	}
	logger.AuditEvent("chat_assigned", caller.ID, "chat", chatID, "manager", managerID)
	s.router.ChatAssigned(chat)
	return chat, nil
}

// CloseChat closes a chat. Closing a closed chat returns it unchanged.
func (s *Service) CloseChat(ctx context.Context, caller *auth.Identity, chatID string) (models.Chat, error) {
	if err := access.Require(caller, access.CanManageLeads(caller)); err != nil {
		return models.Chat{}, err
	}
	chat, closed, err := s.db.CloseChat(chatID)
	if err != nil {
		return models.Chat{}, storeErr(err, "chat")
	}
	if closed {
		logger.AuditEvent("chat_closed", caller.ID, "chat", chatID)
	}
	return chat, nil
}
