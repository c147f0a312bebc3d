package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerchat/pkg/auth"
	"dealerchat/pkg/events"
	"dealerchat/pkg/models"
	"dealerchat/pkg/notify"
	"dealerchat/pkg/service"
	"dealerchat/pkg/store"
)

type testServer struct {
	srv    *httptest.Server
	bus    *events.Bus
	db     *store.DB
	tokens *auth.Tokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	bus := events.NewBus()
	tokens := auth.NewTokens("test-secret", "dealerchat", time.Hour)
	resolver := auth.NewResolver(tokens, auth.NewMemoryRevoker(), db)
	svc := service.New(db, bus, notify.NewRouter(bus, db))

	root := mux.NewRouter()
	v1 := root.PathPrefix("/v1").Subrouter()
	New(svc, resolver, bus, StreamConfig{Heartbeat: 50 * time.Millisecond}).Register(v1)
	h := auth.Gateway(auth.GatewayConfig{RPS: 1000, Burst: 1000}, resolver)(root)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		bus.Close()
		_ = db.Close()
	})
	for _, u := range []struct {
		id   string
		role models.Role
	}{{"admin", models.RoleAdmin}, {"manager", models.RoleManager}, {"cust", models.RoleClient}, {"cust2", models.RoleClient}} {
		_, _, err := db.EnsureUser(u.id, u.role)
		require.NoError(t, err)
	}
	_, err = db.SaveCar(models.Car{ID: "carX", Title: "Roadster"})
	require.NoError(t, err)
	return &testServer{srv: srv, bus: bus, db: db, tokens: tokens}
}

func (ts *testServer) token(t *testing.T, user string, role models.Role) string {
	t.Helper()
	tok, err := ts.tokens.Issue(user, role)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func TestChatFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	cust := ts.token(t, "cust", models.RoleClient)
	admin := ts.token(t, "admin", models.RoleAdmin)
	mgr := ts.token(t, "manager", models.RoleManager)

	res, chat := ts.do(t, http.MethodPost, "/v1/chats/car", cust, map[string]string{"carId": "carX"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	chatID := chat["id"].(string)
	assert.Equal(t, "OPEN", chat["status"])

	res, again := ts.do(t, http.MethodPost, "/v1/chats/car", cust, map[string]string{"carId": "carX"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, chatID, again["id"])

	res, msg := ts.do(t, http.MethodPost, "/v1/chats/"+chatID+"/messages", cust, map[string]string{"text": "Is it available?"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "Is it available?", msg["text"])

	res, body := ts.do(t, http.MethodPost, "/v1/chats/"+chatID+"/messages", mgr, map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])

	res, _ = ts.do(t, http.MethodPost, "/v1/chats/"+chatID+"/assign", admin, map[string]string{"managerId": "manager"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = ts.do(t, http.MethodPost, "/v1/chats/"+chatID+"/messages", mgr, map[string]string{"text": "Yes"})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, list := ts.do(t, http.MethodGet, "/v1/chats/"+chatID+"/messages", cust, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, list["messages"], 2)

	res, _ = ts.do(t, http.MethodPost, "/v1/chats/"+chatID+"/close", mgr, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body = ts.do(t, http.MethodPost, "/v1/chats/"+chatID+"/messages", cust, map[string]string{"text": "late"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "CHAT_CLOSED", body["code"])
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t)
	cust := ts.token(t, "cust", models.RoleClient)

	res, body := ts.do(t, http.MethodGet, "/v1/chats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", body["code"])

	res, _ = ts.do(t, http.MethodGet, "/v1/chats", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, body = ts.do(t, http.MethodGet, "/v1/chats/nope", cust, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])

	res, body = ts.do(t, http.MethodPost, "/v1/leads", cust, map[string]any{"carId": "carX", "type": "BOGUS"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "BAD_USER_INPUT", body["code"])
	assert.NotEmpty(t, body["issues"])

	res, body = ts.do(t, http.MethodGet, "/v1/crm/leads", cust, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestAppointmentOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	cust := ts.token(t, "cust", models.RoleClient)
	mgr := ts.token(t, "manager", models.RoleManager)

	res, lead := ts.do(t, http.MethodPost, "/v1/leads", cust, map[string]any{"carId": "carX", "type": "TEST_DRIVE"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	path := "/v1/leads/" + lead["id"].(string) + "/appointment"
	in := map[string]any{"managerId": "manager", "dateTimeTs": 1800000000, "location": "Showroom"}

	res, body := ts.do(t, http.MethodPost, path, cust, in)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])

	res, appt := ts.do(t, http.MethodPost, path, mgr, in)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "SCHEDULED", appt["status"])

	res, body = ts.do(t, http.MethodPost, path, mgr, in)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "CONFLICT", body["code"])

	res, got := ts.do(t, http.MethodGet, path, cust, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, appt["id"], got["id"])
}

func TestBlankMessageRejected(t *testing.T) {
	ts := newTestServer(t)
	cust := ts.token(t, "cust", models.RoleClient)
	res, chat := ts.do(t, http.MethodPost, "/v1/chats/support", cust, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := ts.do(t, http.MethodPost, "/v1/chats/"+chat["id"].(string)+"/messages", cust, map[string]string{"text": " \t\n"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "BAD_USER_INPUT", body["code"])
}

func TestAdminUsers(t *testing.T) {
	ts := newTestServer(t)
	res, _ := ts.do(t, http.MethodGet, "/v1/admin/users", ts.token(t, "manager", models.RoleManager), nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	admin := ts.token(t, "admin", models.RoleAdmin)
	res, body := ts.do(t, http.MethodGet, "/v1/admin/users?role=CLIENT", admin, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, body["users"], 2)

	res, body = ts.do(t, http.MethodGet, "/v1/admin/users?role=OWNER", admin, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "BAD_USER_INPUT", body["code"])
}

func TestMeAndRevoke(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "cust", models.RoleClient)

	res, me := ts.do(t, http.MethodGet, "/v1/me", tok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "cust", me["id"])
	assert.Equal(t, "CLIENT", me["role"])

	res, _ = ts.do(t, http.MethodPost, "/v1/auth/revoke", tok, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = ts.do(t, http.MethodGet, "/v1/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestBusStatsAdminOnly(t *testing.T) {
	ts := newTestServer(t)
	res, _ := ts.do(t, http.MethodGet, "/v1/admin/bus", ts.token(t, "manager", models.RoleManager), nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body := ts.do(t, http.MethodGet, "/v1/admin/bus", ts.token(t, "admin", models.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, body["topics"], len(events.TopicNames()))
}

func dial(t *testing.T, ts *testServer, path, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + path
	if token != "" {
		if strings.Contains(u, "?") {
			u += "&access_token=" + token
		} else {
			u += "?access_token=" + token
		}
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f map[string]any
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestMessageStream(t *testing.T) {
	ts := newTestServer(t)
	cust := ts.token(t, "cust", models.RoleClient)

	_, chat := ts.do(t, http.MethodPost, "/v1/chats/support", cust, nil)
	chatID := chat["id"].(string)

	conn := dial(t, ts, "/v1/subscribe/messages?chatId="+chatID, cust)
	require.Eventually(t, func() bool {
		return ts.bus.Stats(events.TopicMessageAdded.Name()).Subscribers == 1
	}, 2*time.Second, 10*time.Millisecond)

	for _, text := range []string{"one", "two"} {
		res, _ := ts.do(t, http.MethodPost, "/v1/chats/"+chatID+"/messages", cust, map[string]string{"text": text})
		require.Equal(t, http.StatusCreated, res.StatusCode)
	}
	for _, want := range []string{"one", "two"} {
		f := readFrame(t, conn)
		require.Equal(t, "event", f["type"])
		assert.Equal(t, events.TopicMessageAdded.Name(), f["topic"])
		msg := f["data"].(map[string]any)["message"].(map[string]any)
		assert.Equal(t, want, msg["text"])
	}

	// Closing the client releases the subscription.
	_ = conn.Close()
	require.Eventually(t, func() bool {
		return ts.bus.Stats(events.TopicMessageAdded.Name()).Subscribers == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamRejectsForeignChat(t *testing.T) {
	ts := newTestServer(t)
	_, chat := ts.do(t, http.MethodPost, "/v1/chats/support", ts.token(t, "cust", models.RoleClient), nil)

	conn := dial(t, ts, "/v1/subscribe/messages?chatId="+chat["id"].(string), ts.token(t, "cust2", models.RoleClient))
	f := readFrame(t, conn)
	assert.Equal(t, "error", f["type"])
	assert.Equal(t, "FORBIDDEN", f["code"])
}

func TestStreamClosedOnBusShutdown(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "/v1/subscribe/promotions", ts.token(t, "cust", models.RoleClient))
	require.Eventually(t, func() bool {
		return ts.bus.Stats(events.TopicPromotion.Name()).Subscribers == 1
	}, 2*time.Second, 10*time.Millisecond)

	ts.bus.Close()
	f := readFrame(t, conn)
	assert.Equal(t, "closed", f["type"])
}
