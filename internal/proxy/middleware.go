package proxy

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/raaihank/prompt-shield/internal/logger"
	"github.com/raaihank/prompt-shield/internal/privacy"
	"github.com/raaihank/prompt-shield/internal/websocket"
	"go.uber.org/zap"
)

type ctxKey int

const stateKey ctxKey = iota

// requestState is shared by the middleware chain of one request
type requestState struct {
	id         string
	redactions int
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey).(*requestState)
	return st
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if st := stateFrom(ctx); st != nil {
		return st.id
	}
	return "unknown"
}

func (s *Server) requestLogger(r *http.Request) *logger.Logger {
	return s.logger.WithRequestID(getRequestID(r.Context()))
}

func (s *Server) recordRedactions(r *http.Request, n int) {
	if st := stateFrom(r.Context()); st != nil {
		st.redactions += n
	}
}

// loggingMiddleware assigns a request ID and logs the completed request.
// Bodies are never logged.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		method, path := r.Method, r.URL.Path

		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		st := &requestState{id: id}
		w.Header().Set("X-Request-ID", id)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), stateKey, st)))

		s.logger.WithRequestID(id).LogRequest(method, path, rw.statusCode, time.Since(start), st.redactions)
		s.metrics.HTTPRequests.WithLabelValues(routeTemplate(r), strconv.Itoa(rw.statusCode)).Inc()
	})
}

// rateLimitMiddleware rejects clients that exhausted their token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := getClientIP(r)
		if !s.limiter.Allow(ip) {
			s.metrics.RateLimited.Inc()
			s.requestLogger(r).Warn("Rate limit exceeded", zap.String("client_ip", ip))
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// privacyMiddleware masks the request body and scrubs sensitive headers
// before the request reaches the upstream provider
func (s *Server) privacyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Privacy.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		log := s.requestLogger(r)

		body, status := s.drainBody(w, r)
		if status != 0 {
			log.Warn("Rejected request body", zap.Int("status_code", status))
			writeError(w, status, http.StatusText(status))
			return
		}

		r.Header = http.Header(s.detector.ProcessHeadersForContext(r.Header, true))

		start := time.Now()
		res := s.redactBody(r, body)
		took := time.Since(start)

		s.metrics.ObserveRedaction(res, took)
		s.recordRedactions(r, res.Redactions())

		if res.Detected {
			log.Info("PII masked in request",
				zap.Int("redactions", res.Redactions()),
				zap.Bool("entity_detected", res.EntityDetected),
				zap.Any("findings", res.Findings),
			)
			s.publishDetection(r, res, took)
		}

		if res.Text == "" {
			r.Body = http.NoBody
		} else {
			r.Body = io.NopCloser(strings.NewReader(res.Text))
		}
		r.ContentLength = int64(len(res.Text))
		r.Header.Del("Content-Length")

		next.ServeHTTP(w, r)
	})
}

// redactBody masks only the string values of JSON bodies so numbers such
// as seeds or timestamps never break the document. Other bodies, and JSON
// that fails to parse, are masked as plain text.
func (s *Server) redactBody(r *http.Request, body []byte) privacy.Result {
	if len(body) > 0 && isJSON(r.Header.Get("Content-Type")) {
		res, err := s.detector.RedactJSON(body)
		if err == nil {
			return res
		}
		s.requestLogger(r).Debug("Masking JSON body as text", zap.Error(err))
	}
	return s.detector.Redact(string(body))
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// publishDetection sends categories and counts to the dashboard hub
func (s *Server) publishDetection(r *http.Request, res privacy.Result, took time.Duration) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.PublishDetection(websocket.DetectionEvent{
		RequestID:      getRequestID(r.Context()),
		Method:         r.Method,
		Path:           r.URL.Path,
		Findings:       res.Findings,
		TotalFindings:  res.Redactions(),
		EntityDetected: res.EntityDetected,
		ProcessingMS:   float64(took.Microseconds()) / 1000,
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Flush lets streamed completions pass through unbuffered
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
