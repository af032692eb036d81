package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/visionchat/pkg/chat"
)

func invoke(t *testing.T, body string, headers map[string]string) events.APIGatewayProxyResponse {
	t.Helper()
	t.Setenv("VISIONCHAT_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.json"))
	t.Setenv("VISIONCHAT_API_KEY", "")
	resp, err := handler(context.Background(), events.APIGatewayProxyRequest{Body: body, Headers: headers})
	require.NoError(t, err)
	return resp
}

func TestHandlerWithoutKeyWarns(t *testing.T) {
	resp := invoke(t, `{"text":"What is 2+2?"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out askResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	assert.Equal(t, chat.PathNone, out.Path)
	assert.Equal(t, chat.MissingKeyWarning, out.Warning)
	assert.Empty(t, out.Response)
}

func TestHandlerRejectsBadBody(t *testing.T) {
	resp := invoke(t, `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerRejectsUnsupportedImage(t *testing.T) {
	gif := base64.StdEncoding.EncodeToString([]byte("GIF89a\x01\x00\x01\x00\x80\x00\x00"))
	resp := invoke(t, `{"api_key":"k","image":{"data":"`+gif+`","mime":"image/gif"}}`, nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Contains(t, resp.Body, "Error:")
}

func TestHandlerChecksSecret(t *testing.T) {
	t.Setenv("VISIONCHAT_WEBHOOK_SECRET", "s3cret")

	resp := invoke(t, `{}`, map[string]string{"x-visionchat-secret": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = invoke(t, `{}`, map[string]string{"x-visionchat-secret": "s3cret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
