package store

import (
	"bytes"

	"github.com/cockroachdb/pebble"

	"dealerchat/pkg/logger"
	"dealerchat/pkg/models"
)

// PurgeResult counts records removed (or that would be, in dry-run).
type PurgeResult struct {
	Chats        int `json:"chats"`
	Messages     int `json:"messages"`
	Leads        int `json:"leads"`
	Users        int `json:"users"`
	Cars         int `json:"cars"`
	Promotions   int `json:"promotions"`
	Appointments int `json:"appointments"`
}

// Total sums every counter.
func (r PurgeResult) Total() int {
	return r.Chats + r.Messages + r.Leads + r.Users + r.Cars + r.Promotions + r.Appointments
}

// PurgeDeleted hard-deletes records soft-deleted before the cutoff (unix
// nanos). At most limit top-level records are purged per call when limit > 0.
func (d *DB) PurgeDeleted(before int64, limit int, dryRun bool) (PurgeResult, error) {
	var res PurgeResult
	if !d.Ready() {
		return res, errNotOpen
	}
	room := func() bool { return limit <= 0 || res.Chats+res.Leads+res.Users+res.Cars+res.Promotions < limit }
	expired := func(deleted bool, ts int64) bool { return deleted && ts > 0 && ts < before }

	b := d.db.NewBatch()
	defer b.Close()

	var chats []models.Chat
	err := scanJSON(d, chatMetaPrefix, func(_ []byte, c models.Chat) error {
		if expired(c.Deleted, c.DeletedTS) && room() {
			chats = append(chats, c)
			res.Chats++
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	for _, c := range chats {
		n, err := d.purgeChat(b, c)
		if err != nil {
			return res, err
		}
		res.Messages += n
	}

	purgeSimple := func(prefix string, counter *int, isExpired func([]byte) (bool, error)) error {
		keys, err := d.ListKeys(prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if !room() {
				return nil
			}
			v, err := d.GetKey(k)
			if err != nil {
				return err
			}
			ok, err := isExpired(v)
			if err != nil {
				return err
			}
			if ok {
				*counter++
				if err := b.Delete([]byte(k), nil); err != nil {
					return err
				}
			}
		}
		return nil
	}
	purgedLeads := make(map[string]bool)
	if err := purgeSimple(leadPrefix, &res.Leads, func(v []byte) (bool, error) {
		l, err := decode[models.Lead](v)
		if err == nil && expired(l.Deleted, l.DeletedTS) {
			purgedLeads[l.ID] = true
			return true, nil
		}
		return false, err
	}); err != nil {
		return res, err
	}
	if err := d.purgeAppointments(b, purgedLeads, expired, &res.Appointments); err != nil {
		return res, err
	}
	if err := purgeSimple(userPrefix, &res.Users, func(v []byte) (bool, error) {
		u, err := decode[models.User](v)
		return expired(u.Deleted, u.DeletedTS), err
	}); err != nil {
		return res, err
	}
	if err := purgeSimple(carPrefix, &res.Cars, func(v []byte) (bool, error) {
		c, err := decode[models.Car](v)
		return expired(c.Deleted, c.DeletedTS), err
	}); err != nil {
		return res, err
	}
	if err := purgeSimple(promoPrefix, &res.Promotions, func(v []byte) (bool, error) {
		p, err := decode[models.Promotion](v)
		return expired(p.Deleted, p.DeletedTS), err
	}); err != nil {
		return res, err
	}

	if dryRun || res.Total() == 0 {
		logger.Info("purge_completed", "dry_run", dryRun, "chats", res.Chats, "messages", res.Messages, "leads", res.Leads)
		return res, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("purge_commit_failed", "error", err)
		return PurgeResult{}, err
	}
	logger.Info("purge_completed", "dry_run", false, "chats", res.Chats, "messages", res.Messages, "leads", res.Leads,
		"users", res.Users, "cars", res.Cars, "promotions", res.Promotions, "appointments", res.Appointments)
	return res, nil
}

// purgeChat queues deletion of a chat, its messages and its pairing index
// when the index still points at it. It returns the message count.
func (d *DB) purgeChat(b *pebble.Batch, c models.Chat) (int, error) {
	keys, err := d.ListKeys(chatPrefix(c.ID))
	if err != nil {
		return 0, err
	}
	msgPfx := []byte(messagePrefix(c.ID))
	n := 0
	for _, k := range keys {
		if bytes.HasPrefix([]byte(k), msgPfx) {
			n++
		}
		if err := b.Delete([]byte(k), nil); err != nil {
			return 0, err
		}
	}
	pk := pairingKey(c.CustomerID, c.CarID)
	if cur, err := d.GetKey(pk); err == nil && string(cur) == c.ID {
		if err := b.Delete([]byte(pk), nil); err != nil {
			return 0, err
		}
	}
	return n, b.Delete([]byte(chatMetaKey(c.ID)), nil)
}

// purgeAppointments queues deletion of expired appointments and of those
// whose lead is purged in the same run.
func (d *DB) purgeAppointments(b *pebble.Batch, leads map[string]bool, expired func(bool, int64) bool, n *int) error {
	return scanJSON(d, apptPrefix, func(key []byte, a models.Appointment) error {
		if !leads[a.LeadID] && !expired(a.Deleted, a.DeletedTS) {
			return nil
		}
		*n++
		return b.Delete(key, nil)
	})
}
