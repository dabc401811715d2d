package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/AuthClientGo/errors"
)

// FallbackMessage is surfaced when a failure carries no usable message at all.
const FallbackMessage = "An unexpected error occurred"

// remoteErrorBody mirrors the failure payloads of the auth service: JSON with
// an optional "message" or "error" field.
type remoteErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ExtractMessage pulls a human-readable message out of a failure, checking in
// order: the structured "message" field, the structured "error" field, the
// transport-level error, and finally FallbackMessage.
func ExtractMessage(body []byte, err error) string {
	var remote remoteErrorBody
	if len(body) > 0 && json.Unmarshal(body, &remote) == nil {
		if remote.Message != "" {
			return remote.Message
		}
		if remote.Error != "" {
			return remote.Error
		}
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return FallbackMessage
}

// MessageFromError applies the same extraction order to a bare error with no
// response body, as raised by request construction or hook registration.
func MessageFromError(err error) string {
	return ExtractMessage(nil, err)
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError carrying the extracted message and the response status.
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, operation string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", operation, resp.StatusCode, err)
	}

	message := ExtractMessage(bodyBytes, nil)
	if message == FallbackMessage && len(bodyBytes) > 0 {
		message = fmt.Sprintf("%s returned status %d", operation, resp.StatusCode)
	}

	return apperrors.FromStatus(resp.StatusCode, message)
}
