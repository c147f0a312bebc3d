// Package notify derives who hears about a domain change and publishes one
// notification per recipient.
package notify

import (
	"fmt"
	"time"

	"dealerchat/pkg/events"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
)

// Kind names the trigger a notification is planned for.
type Kind int

const (
	MessageAdded Kind = iota + 1
	LeadCreated
	LeadStatusChanged
	ChatAssigned
)

// Trigger is the domain change being routed.
type Trigger struct {
	Kind Kind
	Chat models.Chat
	Lead models.Lead
}

// Delivery is one planned notification.
type Delivery struct {
	RecipientID string
	Title       string
	Body        string
}

// Plan computes the de-duplicated deliveries for t. staff is the set of
// live managers and admins, consulted only for LeadCreated.
func Plan(t Trigger, staff []models.User) []Delivery {
	var ids []string
	var title, body string
	switch t.Kind {
	case MessageAdded:
		ids = []string{t.Chat.CustomerID, t.Chat.ManagerID}
		title, body = "New message", "You received a new message"
	case LeadCreated:
		for _, u := range staff {
			ids = append(ids, u.ID)
		}
		title, body = "New lead", "A customer created a request"
	case LeadStatusChanged:
		ids = []string{t.Lead.CustomerID}
		title, body = "Lead updated", fmt.Sprintf("Status changed to %s", t.Lead.Status)
	case ChatAssigned:
		ids = []string{t.Chat.ManagerID}
		title, body = "Chat assigned", "You have been assigned a chat"
	default:
		return nil
	}

	seen := make(map[string]bool, len(ids))
	out := make([]Delivery, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Delivery{RecipientID: id, Title: title, Body: body})
	}
	return out
}

// StaffDirectory lists live managers and admins.
type StaffDirectory interface {
	UsersByRole(roles ...models.Role) ([]models.User, error)
}

// Router publishes planned notifications on the bus. Failures are logged
// and never returned: routing must not fail the mutation that caused it.
type Router struct {
	bus *events.Bus
	dir StaffDirectory
	now func() time.Time
}

func NewRouter(bus *events.Bus, dir StaffDirectory) *Router {
	return &Router{bus: bus, dir: dir, now: time.Now}
}

// Route plans and publishes t, returning how many notifications went out.
func (r *Router) Route(t Trigger) int {
	var staff []models.User
	if t.Kind == LeadCreated {
		var err error
		staff, err = r.dir.UsersByRole(models.RoleManager, models.RoleAdmin)
		if err != nil {
			logger.Error("notify_directory_failed", "kind", int(t.Kind), "error", err)
			return 0
		}
	}
	plan := Plan(t, staff)
	if len(plan) == 0 {
		logger.Warn("notify_no_recipients", "kind", int(t.Kind), "chat", t.Chat.ID, "lead", t.Lead.ID)
		return 0
	}
	ts := r.now().UTC().UnixNano()
	for _, d := range plan {
		events.Publish(r.bus, events.TopicNotification, events.NotificationReceived{
			Notification: models.Notification{
				RecipientID: d.RecipientID,
				Title:       d.Title,
				Body:        d.Body,
				OccurredTS:  ts,
			},
		})
	}
	logger.Debug("notify_published", "kind", int(t.Kind), "recipients", len(plan))
	return len(plan)
}

func (r *Router) MessageAdded(chat models.Chat) int {
	return r.Route(Trigger{Kind: MessageAdded, Chat: chat})
}

func (r *Router) ChatAssigned(chat models.Chat) int {
	return r.Route(Trigger{Kind: ChatAssigned, Chat: chat})
}

func (r *Router) LeadCreated(lead models.Lead) int {
	return r.Route(Trigger{Kind: LeadCreated, Lead: lead})
}

func (r *Router) LeadStatusChanged(lead models.Lead) int {
	return r.Route(Trigger{Kind: LeadStatusChanged, Lead: lead})
}
