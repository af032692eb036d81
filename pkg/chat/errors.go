package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sipeed/visionchat/pkg/providers"
)

var ErrRateLimited = errors.New("too many submissions, please wait a moment")

// UserMessage maps a pipeline failure to the text shown in the response
// bubble. Every message starts with "Error:".
func UserMessage(err error) string {
	var apiErr *providers.APIError
	var transportErr *providers.TransportError
	switch {
	case errors.Is(err, providers.ErrMissingCredential):
		return "Error: no API key was provided"
	case errors.Is(err, ErrRateLimited):
		return "Error: " + ErrRateLimited.Error()
	case errors.As(err, &apiErr):
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Sprintf("Error: the API key was rejected (status %d): %s", apiErr.StatusCode, apiErr.Message)
		case http.StatusTooManyRequests:
			return "Error: quota or rate limit exceeded: " + apiErr.Message
		default:
			return fmt.Sprintf("Error: the model provider returned status %d: %s", apiErr.StatusCode, apiErr.Message)
		}
	case errors.As(err, &transportErr):
		return "Error: could not reach the model provider: " + transportErr.Err.Error()
	case errors.Is(err, providers.ErrEmptyResponse):
		return "Error: the model returned an empty response"
	case errors.Is(err, context.Canceled):
		return "Error: the request was cancelled"
	default:
		return "Error: " + err.Error()
	}
}
