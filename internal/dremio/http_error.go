package dremio

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dremio-provisioner/internal/util"
)

// errorEnvelope is the standard error shape returned by the Dremio REST API.
// Responses may include additional fields; we intentionally ignore them.
type errorEnvelope struct {
	ErrorMessage string `json:"errorMessage"`
	MoreInfo     string `json:"moreInfo"`
}

// HTTPError is a sanitized summary of a non-2xx Dremio API response.
//
// Important: do not include raw response bodies here (can leak credentials).
type HTTPError struct {
	Op           string
	StatusCode   int
	Status       string
	ErrorMessage string
	MoreInfo     string

	// Snippet is a redacted, truncated hint for non-envelope responses.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "dremio http error"
	}
	parts := []string{
		fmt.Sprintf("dremio api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.ErrorMessage) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.ErrorMessage))
	}
	if strings.TrimSpace(e.MoreInfo) != "" {
		parts = append(parts, "moreInfo="+strings.TrimSpace(e.MoreInfo))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	// Best effort: parse the Dremio error envelope.
	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.ErrorMessage = strings.TrimSpace(env.ErrorMessage)
		h.MoreInfo = strings.TrimSpace(env.MoreInfo)
		if h.ErrorMessage != "" || h.MoreInfo != "" {
			return h
		}
	}

	// Fallback: include a small, redacted hint only.
	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain sensitive data.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := util.RedactSecrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
