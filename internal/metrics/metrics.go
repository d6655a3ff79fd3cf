// Package metrics provides Prometheus metrics for the files gateway.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgfiles_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tgfiles_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Credential metrics
	exchangeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgfiles_exchange_attempts_total",
			Help: "Pairing code exchange attempts",
		},
		[]string{"result"},
	)

	pairingsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgfiles_pairings_issued_total",
			Help: "Pairing codes minted for operators",
		},
	)

	pendingPairings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tgfiles_pending_pairings",
			Help: "Pairing codes issued but not yet redeemed or expired",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tgfiles_active_sessions",
			Help: "Session credentials currently held in memory",
		},
	)

	operatorAuthTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgfiles_operator_auth_total",
			Help: "Operator token checks and logins",
		},
		[]string{"result"},
	)

	sessionRejectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgfiles_session_rejects_total",
			Help: "Requests rejected for a missing, unknown or expired session credential",
		},
	)

	// Path guard metrics
	pathDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgfiles_path_denied_total",
			Help: "Requests whose target path failed canonicalization or containment",
		},
		[]string{"op"},
	)

	// File operation metrics
	fileOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgfiles_file_ops_total",
			Help: "File operations by type and result",
		},
		[]string{"op", "result"},
	)

	bytesReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgfiles_bytes_read_total",
			Help: "Bytes returned by the read endpoint",
		},
	)

	bytesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgfiles_bytes_written_total",
			Help: "Bytes written by the write endpoint",
		},
	)

	bytesUploadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgfiles_bytes_uploaded_total",
			Help: "Bytes accepted by the upload endpoint",
		},
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tgfiles_search_duration_seconds",
			Help:    "Recursive name search duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rate limiting
	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tgfiles_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	// SSE
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tgfiles_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgfiles_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordExchange records a pairing code exchange attempt.
func RecordExchange(success bool) {
	exchangeAttemptsTotal.WithLabelValues(result(success, "success", "failure")).Inc()
}

// RecordOperatorAuth records an operator authentication outcome.
func RecordOperatorAuth(success bool) {
	operatorAuthTotal.WithLabelValues(result(success, "success", "failure")).Inc()
}

// RecordPairingIssued records a newly minted pairing code.
func RecordPairingIssued() {
	pairingsIssuedTotal.Inc()
}

// SetPendingPairings sets the number of outstanding pairing codes.
func SetPendingPairings(n int) {
	pendingPairings.Set(float64(n))
}

// SetActiveSessions sets the number of live session credentials.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordSessionReject records a request rejected at the session check.
func RecordSessionReject() {
	sessionRejectsTotal.Inc()
}

// RecordPathDenied records a path that failed authorization for op.
func RecordPathDenied(op string) {
	pathDeniedTotal.WithLabelValues(op).Inc()
}

// RecordFileOp records the outcome of a file operation.
func RecordFileOp(op string, success bool) {
	fileOpsTotal.WithLabelValues(op, result(success, "success", "error")).Inc()
}

// RecordBytesRead records bytes served by a read.
func RecordBytesRead(n int64) {
	bytesReadTotal.Add(float64(n))
}

// RecordBytesWritten records bytes stored by a write.
func RecordBytesWritten(n int64) {
	bytesWrittenTotal.Add(float64(n))
}

// RecordBytesUploaded records bytes stored by an upload.
func RecordBytesUploaded(n int64) {
	bytesUploadedTotal.Add(float64(n))
}

// RecordSearch records a search duration.
func RecordSearch(d time.Duration) {
	searchDuration.Observe(d.Seconds())
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// routeLabel keeps the path label bounded for unknown URLs.
func routeLabel(path string) string {
	if path == "/health" || strings.HasPrefix(path, "/api/") {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), rw.statusCode, time.Since(start))
	})
}
