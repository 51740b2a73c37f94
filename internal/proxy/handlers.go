package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

type textRequest struct {
	Text *string `json:"text"`
}

type detectResponse struct {
	Detected bool `json:"detected"`
	Cached   bool `json:"cached"`
}

// readText decodes a {"text": ...} body, writing the error response itself
// when the body is unusable
func (s *Server) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return "", false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, `missing "text" field`)
		return "", false
	}
	return *req.Text, true
}

// handleDetect answers whether text contains sensitive data
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}

	if s.cache != nil {
		if detected, hit := s.cache.Lookup(r.Context(), text); hit {
			s.metrics.ObserveCacheLookup(true)
			s.metrics.ObserveDetect(detected)
			writeJSON(w, http.StatusOK, detectResponse{Detected: detected, Cached: true})
			return
		}
		s.metrics.ObserveCacheLookup(false)
	}

	detected := s.detector.Detect(text)
	s.metrics.ObserveDetect(detected)

	if s.cache != nil {
		if err := s.cache.Store(r.Context(), text, detected); err != nil {
			s.requestLogger(r).Warn("Failed to cache verdict", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, detectResponse{Detected: detected})
}

// handleMask returns the redacted text and per-category counts
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}

	start := time.Now()
	res := s.detector.Redact(text)
	took := time.Since(start)

	s.metrics.ObserveRedaction(res, took)
	s.recordRedactions(r, res.Redactions())
	if res.Detected {
		s.publishDetection(r, res, took)
	}

	writeJSON(w, http.StatusOK, res)
}

// handleProxy forwards the already masked request to the provider
func (s *Server) handleProxy(provider string) http.HandlerFunc {
	proxy := s.upstream[provider]
	prefix := "/" + provider

	return func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		r.URL.RawPath = ""

		start := time.Now()
		proxy.ServeHTTP(w, r)

		s.requestLogger(r).Info("Request proxied",
			zap.String("provider", provider),
			zap.Duration("upstream_duration", time.Since(start)),
		)
	}
}

func (s *Server) newReverseProxy(provider string, target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "prompt-shield/"+Version)
		}

		s.requestLogger(req).Debug("Proxying request",
			zap.String("provider", provider),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
		)
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.requestLogger(r).Error("Proxy error",
			zap.String("provider", provider),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}

	proxy.Transport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: s.config.Upstream.Timeout,
		IdleConnTimeout:       90 * time.Second,
	}

	return proxy
}

// drainBody reads the whole body within the configured limit
func (s *Server) drainBody(w http.ResponseWriter, r *http.Request) ([]byte, int) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes))
	_ = r.Body.Close()
	if err == nil {
		return body, 0
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, http.StatusRequestEntityTooLarge
	}
	return nil, http.StatusBadRequest
}
