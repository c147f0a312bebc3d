package service

import (
	"context"

	"dealerchat/pkg/access"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/events"
)

// SubscribeMessages streams messages of one readable chat.
func (s *Service) SubscribeMessages(ctx context.Context, caller *auth.Identity, chatID string) (*events.Subscription[events.MessageAdded], error) {
	if _, err := s.Chat(ctx, caller, chatID); err != nil {
		return nil, err
	}
	sub, err := events.Subscribe(s.bus, events.TopicMessageAdded, events.Filter{ChatID: chatID})
	return sub, storeErr(err, "subscription")
}

// SubscribeLeads streams lead updates for one customer. Staff may pass an
// empty customerID to see every lead.
func (s *Service) SubscribeLeads(ctx context.Context, caller *auth.Identity, customerID string) (*events.Subscription[events.LeadUpdated], error) {
	if err := access.Require(caller, access.CanSubscribeLeads(caller, customerID)); err != nil {
		return nil, err
	}
	sub, err := events.Subscribe(s.bus, events.TopicLeadUpdated, events.Filter{CustomerID: customerID})
	return sub, storeErr(err, "subscription")
}

// SubscribeNotifications streams notifications addressed to userID, which
// defaults to the caller.
func (s *Service) SubscribeNotifications(ctx context.Context, caller *auth.Identity, userID string) (*events.Subscription[events.NotificationReceived], error) {
	if caller != nil && userID == "" {
		userID = caller.ID
	}
	if err := access.Require(caller, access.CanSubscribeNotifications(caller, userID)); err != nil {
		return nil, err
	}
	sub, err := events.Subscribe(s.bus, events.TopicNotification, events.Filter{UserID: userID})
	return sub, storeErr(err, "subscription")
}

// SubscribePromotions streams every published promotion.
func (s *Service) SubscribePromotions(ctx context.Context, caller *auth.Identity) (*events.Subscription[events.PromotionPublished], error) {
	if err := access.Authenticated(caller); err != nil {
		return nil, err
	}
	sub, err := events.Subscribe(s.bus, events.TopicPromotion, nil)
	return sub, storeErr(err, "subscription")
}
