package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

// errorEnvelope mirrors httputil.Response for error bodies.
type errorEnvelope struct {
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response body and turns it
// into an *apperrors.AppError. The service's error code and message are kept
// so callers can show them to users; the wrapped sentinel follows the status.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("status %d (read body: %w)", resp.StatusCode, err)
	}

	var code, message string
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		code, message = env.Error.Code, env.Error.Message
		if len(env.Error.Fields) > 0 {
			if message == "" {
				message = http.StatusText(resp.StatusCode)
			}
			message = fmt.Sprintf("%s %v", message, env.Error.Fields)
		}
	} else if len(body) > 0 && resp.StatusCode < http.StatusInternalServerError {
		message = string(body)
	}

	return apperrors.FromStatus(resp.StatusCode, code, message)
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
