package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/valyala/bytebufferpool"

	"dealerchat/pkg/apperr"
	"dealerchat/pkg/auth"
	"dealerchat/pkg/events"
	"dealerchat/pkg/logger"
)

// StreamConfig tunes websocket subscription streams.
type StreamConfig struct {
	Heartbeat      time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxFrameSize   int64
	AllowedOrigins []string
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 20 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = 1 << 20
	}
	return c
}

type frame struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Data    any         `json:"data,omitempty"`
	Code    apperr.Code `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (h *Handlers) registerSubscriptions(r *mux.Router) {
	r.HandleFunc("/subscribe/messages", func(w http.ResponseWriter, r *http.Request) {
		chatID := r.URL.Query().Get("chatId")
		serveStream(h, w, r, func(ctx context.Context, id *auth.Identity) (*events.Subscription[events.MessageAdded], error) {
			return h.svc.SubscribeMessages(ctx, id, chatID)
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/subscribe/leads", func(w http.ResponseWriter, r *http.Request) {
		customerID := r.URL.Query().Get("customerId")
		serveStream(h, w, r, func(ctx context.Context, id *auth.Identity) (*events.Subscription[events.LeadUpdated], error) {
			return h.svc.SubscribeLeads(ctx, id, customerID)
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/subscribe/notifications", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		serveStream(h, w, r, func(ctx context.Context, id *auth.Identity) (*events.Subscription[events.NotificationReceived], error) {
			return h.svc.SubscribeNotifications(ctx, id, userID)
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/subscribe/promotions", func(w http.ResponseWriter, r *http.Request) {
		serveStream(h, w, r, func(ctx context.Context, id *auth.Identity) (*events.Subscription[events.PromotionPublished], error) {
			return h.svc.SubscribePromotions(ctx, id)
		})
	}).Methods(http.MethodGet)
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.stream.AllowedOrigins) == 0 {
				return true
			}
			for _, o := range h.stream.AllowedOrigins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// serveStream upgrades the connection and forwards every event of the
// subscription opened by open until either side goes away.
func serveStream[T events.Event](h *Handlers, w http.ResponseWriter, r *http.Request, open func(context.Context, *auth.Identity) (*events.Subscription[T], error)) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "path", r.URL.Path, "error", err)
		return
	}
	defer conn.Close()

	cfg := h.stream
	sub, err := open(r.Context(), caller(r))
	if err != nil {
		code, msg := apperr.CodeOf(err), "subscription failed"
		var ae *apperr.Error
		if errors.As(err, &ae) && code != apperr.Internal {
			msg = ae.Message
		}
		_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
		_ = conn.WriteJSON(frame{Type: "error", Code: code, Message: msg})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(code)),
			time.Now().Add(cfg.WriteTimeout))
		return
	}
	defer sub.Cancel()

	topic := sub.Topic()
	logger.Info("ws_subscribed", "topic", topic, "user", userID(r))
	defer func() {
		logger.Info("ws_unsubscribed", "topic", topic, "user", userID(r), "dropped", sub.Dropped())
	}()

	// Reader: the client sends nothing but control frames; a read error means
	// the peer is gone.
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})
	go func() {
		defer sub.Cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
				_ = conn.WriteJSON(frame{Type: "closed", Topic: topic})
				return
			}
			if err := writeEvent(conn, cfg, topic, ev); err != nil {
				logger.Debug("ws_write_failed", "topic", topic, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, cfg StreamConfig, topic string, ev any) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(frame{Type: "event", Topic: topic, Data: ev}); err != nil {
		return err
	}
	if int64(buf.Len()) > cfg.MaxFrameSize {
		logger.Warn("ws_frame_dropped", "topic", topic, "size", buf.Len(), "max", cfg.MaxFrameSize)
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, buf.B)
}

func userID(r *http.Request) string {
	if id := caller(r); id != nil {
		return id.ID
	}
	return ""
}
