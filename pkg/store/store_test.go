package store

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerchat/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestFindOrCreateChatReturnsSameOpenChat(t *testing.T) {
	d := openTestDB(t)
	first, created, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ChatOpen, first.Status)
	assert.Zero(t, first.LastMessageTS)

	again, created, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	support, _, err := d.FindOrCreateChat("u1", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, support.ID)
	assert.True(t, support.IsSupport())
}

func TestFindOrCreateChatConcurrent(t *testing.T) {
	d := openTestDB(t)
	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := d.FindOrCreateChat("u1", "car1")
			assert.NoError(t, err)
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	chats, err := d.ListChats(ChatFilter{CustomerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestClosedPairingGetsNewChat(t *testing.T) {
	d := openTestDB(t)
	c, _, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	_, _, err = d.CloseChat(c.ID)
	require.NoError(t, err)
	next, created, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, c.ID, next.ID)
}

func TestAppendMessageOrderingAndLastMessage(t *testing.T) {
	d := openTestDB(t)
	fixed := time.Unix(1700000000, 0)
	d.SetClock(func() time.Time { return fixed })
	c, _, err := d.FindOrCreateChat("u1", "")
	require.NoError(t, err)

	texts := []string{"first", "second  with  spaces", "ünïcödé 🚗"}
	for _, txt := range texts {
		_, _, err := d.AppendMessage(c.ID, "u1", txt, models.KindText)
		require.NoError(t, err)
	}
	msgs, err := d.ListMessages(c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, texts[i], m.Text)
		assert.Equal(t, models.KindText, m.Kind)
	}
	got, err := d.GetChat(c.ID)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixNano(), got.LastMessageTS)
}

func TestAppendMessageOrderAcrossSequenceRollover(t *testing.T) {
	d := openTestDB(t)
	fixed := time.Unix(1700000000, 0)
	d.SetClock(func() time.Time { return fixed })
	c, _, err := d.FindOrCreateChat("u1", "")
	require.NoError(t, err)

	d.seq.Store(999_998)
	texts := []string{"a", "b", "c", "d"}
	for _, txt := range texts {
		_, _, err := d.AppendMessage(c.ID, "u1", txt, models.KindText)
		require.NoError(t, err)
	}
	msgs, err := d.ListMessages(c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, texts[i], m.Text)
	}
}

func TestAppendMessageReturnsCurrentChat(t *testing.T) {
	d := openTestDB(t)
	c, _, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	_, err = d.AssignChat(c.ID, "m1")
	require.NoError(t, err)

	msg, chat, err := d.AppendMessage(c.ID, "u1", "hi", models.KindText)
	require.NoError(t, err)
	assert.Equal(t, "m1", chat.ManagerID)
	assert.Equal(t, msg.TS, chat.LastMessageTS)
}

func TestAppendToClosedChatFails(t *testing.T) {
	d := openTestDB(t)
	c, _, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	closed, changed, err := d.CloseChat(c.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.ChatClosed, closed.Status)
	assert.Zero(t, closed.LastMessageTS, "closing writes no message")

	_, _, err = d.AppendMessage(c.ID, "u1", "hello?", models.KindText)
	assert.ErrorIs(t, err, ErrChatClosed)

	msgs, err := d.ListMessages(c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	again, changed, err := d.CloseChat(c.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.ChatClosed, again.Status)

	_, err = d.AssignChat(c.ID, "m2")
	assert.ErrorIs(t, err, ErrChatClosed)
}

func TestAppointmentUniquePerLead(t *testing.T) {
	d := openTestDB(t)
	a := models.Appointment{ID: "a1", LeadID: "l1", ManagerID: "m1", TS: 1, Location: "Showroom", Status: models.AppointmentScheduled}
	require.NoError(t, d.CreateAppointment(a))

	dup := a
	dup.ID = "a2"
	assert.ErrorIs(t, d.CreateAppointment(dup), ErrConflict)

	got, err := d.GetAppointment("l1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	_, err = d.GetAppointment("l2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppointmentConcurrentCreate(t *testing.T) {
	d := openTestDB(t)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.CreateAppointment(models.Appointment{ID: "a", LeadID: "l1", Location: "Lot"})
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestSoftDeletedChatIsHidden(t *testing.T) {
	d := openTestDB(t)
	c, _, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	_, _, err = d.AppendMessage(c.ID, "u1", "hi", models.KindText)
	require.NoError(t, err)
	_, err = d.SoftDeleteChat(c.ID)
	require.NoError(t, err)

	_, err = d.GetChat(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.ListMessages(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = d.AppendMessage(c.ID, "u1", "again", models.KindText)
	assert.ErrorIs(t, err, ErrNotFound)
	chats, err := d.ListChats(ChatFilter{})
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestRedactMessageKeepsOrder(t *testing.T) {
	d := openTestDB(t)
	c, _, err := d.FindOrCreateChat("u1", "")
	require.NoError(t, err)
	a, _, err := d.AppendMessage(c.ID, "u1", "a", models.KindText)
	require.NoError(t, err)
	_, _, err = d.AppendMessage(c.ID, "u1", "b", models.KindText)
	require.NoError(t, err)

	_, err = d.RedactMessage(c.ID, a.ID)
	require.NoError(t, err)
	msgs, err := d.ListMessages(c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b", msgs[0].Text)

	_, err = d.RedactMessage(c.ID, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListChatsSortingAndFilters(t *testing.T) {
	d := openTestDB(t)
	clock := time.Unix(1700000000, 0)
	d.SetClock(func() time.Time { clock = clock.Add(time.Second); return clock })

	older, _, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	newer, _, err := d.FindOrCreateChat("u1", "car2")
	require.NoError(t, err)
	other, _, err := d.FindOrCreateChat("u2", "")
	require.NoError(t, err)
	_, _, err = d.AppendMessage(older.ID, "u1", "ping", models.KindText)
	require.NoError(t, err)
	_, err = d.AssignChat(other.ID, "m1")
	require.NoError(t, err)

	mine, err := d.ListChats(ChatFilter{CustomerID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, older.ID, mine[0].ID, "chat with a message sorts first")
	assert.Equal(t, newer.ID, mine[1].ID)

	unassigned, err := d.ListChats(ChatFilter{UnassignedOnly: true})
	require.NoError(t, err)
	assert.Len(t, unassigned, 2)

	assigned, err := d.ListChats(ChatFilter{ManagerID: "m1"})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, other.ID, assigned[0].ID)
}

func TestLeadsAndDirectory(t *testing.T) {
	d := openTestDB(t)
	for i, id := range []string{"l1", "l2"} {
		require.NoError(t, d.CreateLead(models.Lead{
			ID: id, Type: models.LeadQuestion, Status: models.LeadNew,
			CustomerID: "u1", CarID: "car1", CreatedTS: int64(i + 1),
		}))
	}
	leads, err := d.ListLeads(LeadFilter{CustomerID: "u1"})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "l2", leads[0].ID)

	updated, err := d.UpdateLead("l1", func(l *models.Lead) error {
		l.Status = models.LeadInProgress
		l.AssignedManagerID = "m1"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.LeadInProgress, updated.Status)
	byManager, err := d.ListLeads(LeadFilter{AssignedManagerID: "m1"})
	require.NoError(t, err)
	assert.Len(t, byManager, 1)

	_, created, err := d.EnsureUser("m1", models.RoleManager)
	require.NoError(t, err)
	assert.True(t, created)
	u, created, err := d.EnsureUser("m1", models.RoleClient)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.RoleManager, u.Role)
	_, _, err = d.EnsureUser("a1", models.RoleAdmin)
	require.NoError(t, err)
	_, _, err = d.EnsureUser("u1", models.RoleClient)
	require.NoError(t, err)

	staff, err := d.UsersByRole(models.RoleManager, models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, staff, 2)

	_, err = d.SoftDeleteUser("m1")
	require.NoError(t, err)
	staff, err = d.UsersByRole(models.RoleManager, models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, staff, 1)

	car, err := d.SaveCar(models.Car{ID: "car1", Title: "Sedan"})
	require.NoError(t, err)
	assert.Equal(t, models.CarAvailable, car.Status)
	_, err = d.SoftDeleteCar("car1")
	require.NoError(t, err)
	_, err = d.GetCar("car1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeDeleted(t *testing.T) {
	d := openTestDB(t)
	now := time.Unix(1700000000, 0)
	d.SetClock(func() time.Time { return now })
	c, _, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	_, _, err = d.AppendMessage(c.ID, "u1", "hi", models.KindText)
	require.NoError(t, err)
	_, err = d.SoftDeleteChat(c.ID)
	require.NoError(t, err)
	require.NoError(t, d.CreateLead(models.Lead{ID: "l1", CustomerID: "u1", Status: models.LeadNew}))
	require.NoError(t, d.CreateAppointment(models.Appointment{ID: "a1", LeadID: "l1", Location: "Lot"}))
	_, err = d.SoftDeleteLead("l1")
	require.NoError(t, err)

	res, err := d.PurgeDeleted(now.UnixNano(), 0, false)
	require.NoError(t, err)
	assert.Zero(t, res.Total(), "cutoff is exclusive")

	cutoff := now.Add(time.Hour).UnixNano()
	res, err = d.PurgeDeleted(cutoff, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chats)
	assert.Equal(t, 1, res.Messages)
	keys, err := d.ListKeys("")
	require.NoError(t, err)
	assert.NotEmpty(t, keys, "dry run keeps data")

	res, err = d.PurgeDeleted(cutoff, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Leads)
	assert.Equal(t, 1, res.Appointments, "lead takes its appointment along")
	keys, err = d.ListKeys("")
	require.NoError(t, err)
	assert.Empty(t, keys)

	next, created, err := d.FindOrCreateChat("u1", "car1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, c.ID, next.ID)
}

func TestCollector(t *testing.T) {
	d := openTestDB(t)
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(d)))
	n, err := testutil.GatherAndCount(reg, "dealerchat_pebble_ready")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRebuildIndexesRestoresMessageIDs(t *testing.T) {
	db := openTestDB(t)
	chat, _, err := db.FindOrCreateChat("cust", "")
	require.NoError(t, err)
	msg, _, err := db.AppendMessage(chat.ID, "cust", "hi", models.KindText)
	require.NoError(t, err)

	require.NoError(t, db.DeleteKey(messageIDKey(chat.ID, msg.ID)))
	rep, err := db.RebuildIndexes()
	require.NoError(t, err)
	assert.Equal(t, 1, rep.MessageIDs)
	assert.Equal(t, 0, rep.Pairings)

	_, err = db.RedactMessage(chat.ID, msg.ID)
	require.NoError(t, err)

	rep, err = db.RebuildIndexes()
	require.NoError(t, err)
	assert.Equal(t, IndexRepair{}, rep)
}
