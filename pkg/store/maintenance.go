package store

import (
	"errors"
	"strings"

	"github.com/cockroachdb/pebble"

	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
)

// SaveKey writes a raw value.
func (d *DB) SaveKey(key string, value []byte) error {
	if !d.Ready() {
		return errNotOpen
	}
	return d.db.Set([]byte(key), value, pebble.Sync)
}

// DeleteKey removes a raw key. Missing keys are not an error.
func (d *DB) DeleteKey(key string) error {
	if !d.Ready() {
		return errNotOpen
	}
	return d.db.Delete([]byte(key), pebble.Sync)
}

// IndexRepair counts entries rewritten by RebuildIndexes.
type IndexRepair struct {
	Pairings   int `json:"pairings"`
	MessageIDs int `json:"messageIds"`
}

// RebuildIndexes restores the pairing index of every open chat (the oldest
// open chat wins when several share a pairing) and the message-id index of
// every stored message. It is idempotent.
func (d *DB) RebuildIndexes() (IndexRepair, error) {
	var rep IndexRepair
	if !d.Ready() {
		return rep, errNotOpen
	}

	winners := map[string]models.Chat{}
	err := scanJSON(d, chatMetaPrefix, func(_ []byte, c models.Chat) error {
		if c.Deleted || c.Status != models.ChatOpen {
			return nil
		}
		pk := pairingKey(c.CustomerID, c.CarID)
		if w, ok := winners[pk]; !ok || c.CreatedTS < w.CreatedTS {
			winners[pk] = c
		}
		return nil
	})
	if err != nil {
		return rep, err
	}

	b := d.db.NewBatch()
	defer b.Close()
	for pk, c := range winners {
		unlock := d.locks.lock(pk)
		cur, err := d.GetKey(pk)
		unlock()
		if err != nil && !errors.Is(err, ErrNotFound) {
			return rep, err
		}
		if string(cur) == c.ID {
			continue
		}
		if err := b.Set([]byte(pk), []byte(c.ID), nil); err != nil {
			return rep, err
		}
		rep.Pairings++
	}

	keys, err := d.ListKeys("chat:")
	if err != nil {
		return rep, err
	}
	for _, key := range keys {
		if !isMessageKey(key) {
			continue
		}
		raw, err := d.GetKey(key)
		if err != nil {
			return rep, err
		}
		m, err := decode[models.Message](raw)
		if err != nil || m.ID == "" {
			logger.Warn("rebuild_indexes_skip", "key", key, "error", err)
			continue
		}
		idKey := messageIDKey(m.ChatID, m.ID)
		cur, err := d.GetKey(idKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return rep, err
		}
		if string(cur) == key {
			continue
		}
		if err := b.Set([]byte(idKey), []byte(key), nil); err != nil {
			return rep, err
		}
		rep.MessageIDs++
	}

	if rep.Pairings+rep.MessageIDs == 0 {
		return rep, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("rebuild_indexes_failed", "error", err)
		return IndexRepair{}, err
	}
	logger.Info("indexes_rebuilt", "pairings", rep.Pairings, "message_ids", rep.MessageIDs)
	return rep, nil
}

func isMessageKey(key string) bool { return strings.Contains(key, ":msg:") }
