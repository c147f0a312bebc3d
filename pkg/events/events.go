// Package events implements the in-process event bus that fans domain
// changes out to live subscribers.
package events

import "dealerchat/pkg/models"

// Scope is the routing data an event carries for filter evaluation.
type Scope struct {
	ChatID     string
	CustomerID string
	UserID     string
}

// Event is the closed set of payloads the bus carries.
type Event interface {
	Scope() Scope
	isEvent()
}

// LeadUpdated is published whenever a lead is created or changes state.
type LeadUpdated struct {
	Lead models.Lead `json:"lead"`
}

func (e LeadUpdated) Scope() Scope { return Scope{CustomerID: e.Lead.CustomerID} }
func (LeadUpdated) isEvent()       {}

// MessageAdded is published after a message is committed to a chat.
type MessageAdded struct {
	Message models.Message `json:"message"`
}

func (e MessageAdded) Scope() Scope { return Scope{ChatID: e.Message.ChatID} }
func (MessageAdded) isEvent()       {}

// NotificationReceived carries one notification to one recipient.
type NotificationReceived struct {
	Notification models.Notification `json:"notification"`
}

func (e NotificationReceived) Scope() Scope {
	return Scope{UserID: e.Notification.RecipientID}
}
func (NotificationReceived) isEvent() {}

// PromotionPublished is broadcast to everyone.
type PromotionPublished struct {
	Promotion models.Promotion `json:"promotion"`
}

func (PromotionPublished) Scope() Scope { return Scope{} }
func (PromotionPublished) isEvent()     {}

// Topic binds a topic name to its payload type.
type Topic[T Event] struct {
	name string
}

func (t Topic[T]) Name() string { return t.name }

var (
	TopicLeadUpdated  = Topic[LeadUpdated]{name: "lead-updated"}
	TopicMessageAdded = Topic[MessageAdded]{name: "message-added"}
	TopicNotification = Topic[NotificationReceived]{name: "notification"}
	TopicPromotion    = Topic[PromotionPublished]{name: "promotion-published"}
)

// TopicNames lists every topic the bus knows about.
func TopicNames() []string {
	return []string{
		TopicLeadUpdated.name,
		TopicMessageAdded.name,
		TopicNotification.name,
		TopicPromotion.name,
	}
}

// Predicate decides whether a subscriber receives an event.
type Predicate interface {
	Match(Event) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(Event) bool

func (f PredicateFunc) Match(ev Event) bool { return f(ev) }

// Filter matches on scope fields. Empty fields match anything.
type Filter struct {
	ChatID     string
	CustomerID string
	UserID     string
}

func (f Filter) Match(ev Event) bool {
	s := ev.Scope()
	if f.ChatID != "" && f.ChatID != s.ChatID {
		return false
	}
	if f.CustomerID != "" && f.CustomerID != s.CustomerID {
		return false
	}
	if f.UserID != "" && f.UserID != s.UserID {
		return false
	}
	return true
}
