package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
	"dealerchat/pkg/utils"
)

// FindOrCreateChat returns the open chat for the customer/car pairing,
// creating it when none exists. An empty carID selects the support chat.
// The boolean reports whether a new chat was created.
func (d *DB) FindOrCreateChat(customerID, carID string) (models.Chat, bool, error) {
	pk := pairingKey(customerID, carID)
	unlock := d.locks.lock(pk)
	defer unlock()

	if raw, err := d.GetKey(pk); err == nil {
		existing, err := getLive[models.Chat](d, chatMetaKey(string(raw)))
		if err == nil && existing.Status == models.ChatOpen {
			return existing, false, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return models.Chat{}, false, err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return models.Chat{}, false, err
	}

	now := d.nowNanos()
	chat := models.Chat{
		ID:         utils.GenID("chat"),
		Status:     models.ChatOpen,
		CustomerID: customerID,
		CarID:      carID,
		CreatedTS:  now,
		UpdatedTS:  now,
	}
	b := d.db.NewBatch()
	defer b.Close()
	if err := batchJSON(b, chatMetaKey(chat.ID), chat); err != nil {
		return models.Chat{}, false, err
	}
	if err := b.Set([]byte(pk), []byte(chat.ID), nil); err != nil {
		return models.Chat{}, false, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("create_chat_failed", "customer", customerID, "car", carID, "error", err)
		return models.Chat{}, false, err
	}
	logger.Info("chat_created", "chat", chat.ID, "customer", customerID, "car", carID)
	return chat, true, nil
}

// GetChat returns a live chat.
func (d *DB) GetChat(id string) (models.Chat, error) {
	return getLive[models.Chat](d, chatMetaKey(id))
}

// AppendMessage writes a message to an open chat and advances its
// lastMessage timestamp in the same batch. It returns the chat as written.
func (d *DB) AppendMessage(chatID, authorID, text string, kind models.MessageKind) (models.Message, models.Chat, error) {
	unlock := d.locks.lock(chatMetaKey(chatID))
	defer unlock()

	chat, err := d.GetChat(chatID)
	if err != nil {
		return models.Message{}, models.Chat{}, err
	}
	if chat.Status != models.ChatOpen {
		return models.Message{}, models.Chat{}, ErrChatClosed
	}
	msg, err := d.appendLocked(&chat, authorID, text, kind)
	if err != nil {
		return models.Message{}, models.Chat{}, err
	}
	return msg, chat, nil
}

// appendLocked commits msg plus the updated chat in one batch. Callers hold
// the chat lock.
func (d *DB) appendLocked(chat *models.Chat, authorID, text string, kind models.MessageKind) (models.Message, error) {
	ts := d.nowNanos()
	msg := models.Message{
		ID:       utils.GenID("msg"),
		ChatID:   chat.ID,
		AuthorID: authorID,
		Text:     text,
		Kind:     kind,
		TS:       ts,
	}
	updated := *chat
	updated.LastMessageTS = ts
	updated.UpdatedTS = ts

	key := messageKey(chat.ID, ts, d.seq.Add(1))
	b := d.db.NewBatch()
	defer b.Close()
	if err := batchJSON(b, key, msg); err != nil {
		return models.Message{}, err
	}
	if err := b.Set([]byte(messageIDKey(chat.ID, msg.ID)), []byte(key), nil); err != nil {
		return models.Message{}, err
	}
	if err := batchJSON(b, chatMetaKey(chat.ID), updated); err != nil {
		return models.Message{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("save_message_failed", "chat", chat.ID, "key", key, "error", err)
		return models.Message{}, err
	}
	*chat = updated
	logger.Debug("message_saved", "chat", chat.ID, "key", key, "msg_id", msg.ID)
	return msg, nil
}

// AssignChat sets the chat's manager. Closed chats cannot be reassigned.
func (d *DB) AssignChat(chatID, managerID string) (models.Chat, error) {
	return mutate(d, chatMetaKey(chatID), func(c *models.Chat) error {
		if c.Status != models.ChatOpen {
			return ErrChatClosed
		}
		c.ManagerID = managerID
		c.UpdatedTS = d.nowNanos()
		return nil
	})
}

// CloseChat flips the chat to Closed. Closing a closed chat returns it
// unchanged; the boolean reports whether this call closed it.
func (d *DB) CloseChat(chatID string) (models.Chat, bool, error) {
	closed := false
	chat, err := mutate(d, chatMetaKey(chatID), func(c *models.Chat) error {
		if c.Status == models.ChatClosed {
			return nil
		}
		c.Status = models.ChatClosed
		c.UpdatedTS = d.nowNanos()
		closed = true
		return nil
	})
	if err != nil {
		return models.Chat{}, false, err
	}
	if closed {
		logger.Info("chat_closed", "chat", chat.ID)
	}
	return chat, closed, nil
}

// SoftDeleteChat hides a chat and all of its messages from reads.
func (d *DB) SoftDeleteChat(chatID string) (models.Chat, error) {
	return mutate(d, chatMetaKey(chatID), func(c *models.Chat) error {
		now := d.nowNanos()
		c.Deleted = true
		c.DeletedTS = now
		c.UpdatedTS = now
		return nil
	})
}

// ChatFilter narrows ListChats. Zero fields match everything.
type ChatFilter struct {
	CustomerID     string
	ManagerID      string
	Status         models.ChatStatus
	UnassignedOnly bool
}

func (f ChatFilter) match(c models.Chat) bool {
	if f.CustomerID != "" && c.CustomerID != f.CustomerID {
		return false
	}
	if f.ManagerID != "" && c.ManagerID != f.ManagerID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.UnassignedOnly && c.ManagerID != "" {
		return false
	}
	return true
}

// ListChats returns live chats matching f, most recently active first.
func (d *DB) ListChats(f ChatFilter) ([]models.Chat, error) {
	var out []models.Chat
	err := scanJSON(d, chatMetaPrefix, func(_ []byte, c models.Chat) error {
		if !c.IsDeleted() && f.match(c) {
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastMessageTS != out[j].LastMessageTS {
			return out[i].LastMessageTS > out[j].LastMessageTS
		}
		return out[i].CreatedTS > out[j].CreatedTS
	})
	return out, nil
}

// ListMessages returns the live messages of a live chat in order.
func (d *DB) ListMessages(chatID string) ([]models.Message, error) {
	if _, err := d.GetChat(chatID); err != nil {
		return nil, err
	}
	var out []models.Message
	err := scanJSON(d, messagePrefix(chatID), func(_ []byte, m models.Message) error {
		if !m.IsDeleted() {
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// RedactMessage sets the compliance flag on a message in place.
func (d *DB) RedactMessage(chatID, msgID string) (models.Message, error) {
	unlock := d.locks.lock(chatMetaKey(chatID))
	defer unlock()
	if _, err := d.GetChat(chatID); err != nil {
		return models.Message{}, err
	}
	key, err := d.GetKey(messageIDKey(chatID, msgID))
	if err != nil {
		return models.Message{}, err
	}
	msg, err := getLive[models.Message](d, string(key))
	if err != nil {
		return models.Message{}, err
	}
	msg.Deleted = true
	if err := putJSON(d, string(key), msg); err != nil {
		return models.Message{}, fmt.Errorf("redact %s: %w", msgID, err)
	}
	return msg, nil
}
