package privacy

import (
	"strings"

	"go.uber.org/zap"
)

// RedactedHeaderValue replaces scrubbed header values
const RedactedHeaderValue = "[REDACTED]"

var authHeaders = []string{"authorization", "x-api-key", "x-auth-token", "bearer"}

// ProcessHeaders scrubs sensitive headers, e.g. before they are logged or
// broadcast
func (d *Detector) ProcessHeaders(headers map[string][]string) map[string][]string {
	return d.ProcessHeadersForContext(headers, false)
}

// ProcessHeadersForContext scrubs sensitive headers. When forUpstream is
// set and the configuration allows it, auth headers are kept so the
// upstream provider can still authenticate the request.
func (d *Detector) ProcessHeadersForContext(headers map[string][]string, forUpstream bool) map[string][]string {
	if !d.config.Enabled || !d.config.HeaderScrubbing.Enabled {
		return headers
	}

	processed := make(map[string][]string, len(headers))
	for key, values := range headers {
		if !d.isSensitiveHeader(key) {
			processed[key] = values
			continue
		}

		if forUpstream && d.config.HeaderScrubbing.PreserveUpstreamAuth && IsAuthHeader(key) {
			processed[key] = values
			d.logger.Debug("Auth header preserved for upstream", zap.String("header", key))
			continue
		}

		processed[key] = []string{RedactedHeaderValue}
		d.logger.Debug("Header scrubbed", zap.String("header", key))
	}

	return processed
}

func (d *Detector) isSensitiveHeader(header string) bool {
	headerLower := strings.ToLower(header)
	for _, sensitive := range d.config.HeaderScrubbing.Headers {
		if strings.Contains(headerLower, strings.ToLower(sensitive)) {
			return true
		}
	}
	return false
}

// IsAuthHeader reports whether a header carries upstream credentials
func IsAuthHeader(header string) bool {
	return containsAny(strings.ToLower(header), authHeaders)
}
