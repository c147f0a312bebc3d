// Package telemetry records request timing: sampled span traces written to
// the state directory, slow-request logs and prometheus HTTP metrics.
package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"dealerchat/pkg/logger"
)

type ctxKeyType struct{}

var (
	writerOnce    sync.Once
	writerCh      chan []byte
	traceDir      atomic.Value
	requestCtr    uint64
	spanCtr       uint64
	sampleRate    = 0.001
	slowThreshold = 200 * time.Millisecond
)

// Span is a simple span relative to request start (milliseconds).
type Span struct {
	ID       string         `json:"id"`
	ParentID string         `json:"parent_id,omitempty"`
	Op       string         `json:"op"`
	StartMs  int64          `json:"start_ms"`
	Duration int64          `json:"duration_ms"`
	Data     map[string]any `json:"data,omitempty"`
}

// Telemetry is the trace of one sampled request.
type Telemetry struct {
	RequestID string `json:"request_id"`
	Op        string `json:"op"`
	StartMs   int64  `json:"start_ms"`
	Duration  int64  `json:"duration_ms"`
	Status    int    `json:"status"`
	Spans     []Span `json:"spans,omitempty"`

	startTime time.Time
	mu        sync.Mutex
	spanStack []string
}

// SetTraceDir sets where sampled traces are appended (telemetry.jsonl).
func SetTraceDir(dir string) { traceDir.Store(dir) }

func initWriter() {
	writerCh = make(chan []byte, 1024)
	go func() {
		dir, _ := traceDir.Load().(string)
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "dealerchat-telemetry")
		}
		_ = os.MkdirAll(dir, 0o755)
		f, err := os.OpenFile(filepath.Join(dir, "telemetry.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("telemetry_writer_unavailable", "dir", dir, "error", err)
			for range writerCh {
			}
			return
		}
		defer f.Close()
		for b := range writerCh {
			_, _ = f.Write(append(b, '\n'))
		}
	}()
}

// Metrics are the HTTP collectors used by Middleware.
type Metrics struct {
	duration *prometheus.HistogramVec
}

// NewMetrics registers the request histogram with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealerchat_http_request_duration_seconds",
		Help:    "HTTP request latency by route, method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
	if reg != nil {
		if err := reg.Register(h); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				h = are.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
	}
	return &Metrics{duration: h}
}

// Middleware records request timing and sampled spans. m may be nil.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := genRequestID()
			w.Header().Set("X-Request-ID", reqID)

			var tel *Telemetry
			if shouldSample(r) {
				tel = &Telemetry{
					RequestID: reqID,
					Op:        r.Method + " " + r.URL.Path,
					startTime: start,
					StartMs:   start.UnixMilli(),
				}
				rootID := genSpanID()
				tel.Spans = append(tel.Spans, Span{ID: rootID, Op: tel.Op})
				tel.spanStack = append(tel.spanStack, rootID)
				r = r.WithContext(context.WithValue(r.Context(), ctxKeyType{}, tel))
			}

			rt := &routeTag{route: "unmatched"}
			r = r.WithContext(context.WithValue(r.Context(), routeKeyType{}, rt))

			srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(srw, r)
			dur := time.Since(start)
			route := rt.route
			if m != nil && !srw.hijacked {
				m.duration.WithLabelValues(route, r.Method, strconv.Itoa(srw.status)).Observe(dur.Seconds())
			}

			if tel != nil {
				tel.mu.Lock()
				tel.Status = srw.status
				tel.Duration = dur.Milliseconds()
				b, err := json.Marshal(tel)
				tel.mu.Unlock()
				if err == nil {
					writerOnce.Do(initWriter)
					select {
					case writerCh <- b:
					default:
					}
				}
				return
			}
			if dur > slowThreshold && !srw.hijacked {
				logger.Warn("slow_request", "request_id", reqID, "route", route, "method", r.Method,
					"duration_ms", dur.Milliseconds(), "status", srw.status)
			}
		})
	}
}

type routeKeyType struct{}

type routeTag struct{ route string }

// TagRoute is a mux middleware that reports the matched path template back
// to Middleware, keeping the route label bounded.
func TagRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt, ok := r.Context().Value(routeKeyType{}).(*routeTag); ok {
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					rt.route = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// StartSpan returns an end function. Unsampled requests get a no-op.
func StartSpan(ctx context.Context, name string) func() {
	tel, ok := ctx.Value(ctxKeyType{}).(*Telemetry)
	if !ok {
		return func() {}
	}
	startRel := time.Since(tel.startTime).Milliseconds()
	id := genSpanID()

	tel.mu.Lock()
	parent := ""
	if len(tel.spanStack) > 0 {
		parent = tel.spanStack[len(tel.spanStack)-1]
	}
	tel.Spans = append(tel.Spans, Span{ID: id, ParentID: parent, Op: name, StartMs: startRel})
	tel.spanStack = append(tel.spanStack, id)
	idx := len(tel.Spans) - 1
	tel.mu.Unlock()

	return func() {
		endRel := time.Since(tel.startTime).Milliseconds()
		tel.mu.Lock()
		tel.Spans[idx].Duration = endRel - tel.Spans[idx].StartMs
		if len(tel.spanStack) > 0 {
			tel.spanStack = tel.spanStack[:len(tel.spanStack)-1]
		}
		tel.mu.Unlock()
	}
}

// SetSpanData attaches a key/value to the active span.
func SetSpanData(ctx context.Context, key string, value any) {
	tel, ok := ctx.Value(ctxKeyType{}).(*Telemetry)
	if !ok {
		return
	}
	tel.mu.Lock()
	defer tel.mu.Unlock()
	if len(tel.spanStack) == 0 {
		return
	}
	top := tel.spanStack[len(tel.spanStack)-1]
	for i := len(tel.Spans) - 1; i >= 0; i-- {
		if tel.Spans[i].ID == top {
			if tel.Spans[i].Data == nil {
				tel.Spans[i].Data = make(map[string]any)
			}
			tel.Spans[i].Data[key] = value
			return
		}
	}
}

// shouldSample also honours `X-Debug-Telemetry: 1`.
func shouldSample(r *http.Request) bool {
	if r.Header.Get("X-Debug-Telemetry") == "1" {
		return true
	}
	if sampleRate <= 0 {
		return false
	}
	denom := int64(1 / sampleRate)
	if denom <= 1 {
		return true
	}
	n := int64(atomic.AddUint64(&requestCtr, 1))
	return n%denom == 0
}

func genRequestID() string {
	n := atomic.AddUint64(&requestCtr, 1)
	return "r-" + time.Now().Format("20060102T150405") + "-" + strconv.FormatUint(n, 10)
}

func genSpanID() string {
	return "s-" + strconv.FormatUint(atomic.AddUint64(&spanCtr, 1), 10)
}

// SetSampleRate sets the approximate sampling rate for full traces (0..1).
func SetSampleRate(r float64) {
	switch {
	case r < 0:
		r = 0
	case r > 1:
		r = 1
	}
	sampleRate = r
}

// SetSlowThreshold sets the duration above which unsampled requests are logged.
func SetSlowThreshold(d time.Duration) {
	if d < 0 {
		d = 0
	}
	slowThreshold = d
}

// statusRecorder captures the response status and lets websocket upgrades
// take over the connection.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("telemetry: response writer does not support hijacking")
	}
	r.hijacked = true
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
