package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/visionchat/pkg/media"
)

func anthropicEvent(name, data string) string {
	return "event: " + name + "\ndata: " + data + "\n\n"
}

func TestAnthropicStream(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, anthropicEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-haiku-latest","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":1}}}`))
		fmt.Fprint(w, anthropicEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`))
		fmt.Fprint(w, anthropicEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`))
		fmt.Fprint(w, anthropicEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`))
		fmt.Fprint(w, anthropicEvent("content_block_stop", `{"type":"content_block_stop","index":0}`))
		fmt.Fprint(w, anthropicEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`))
		fmt.Fprint(w, anthropicEvent("message_stop", `{"type":"message_stop"}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL, "claude-3-5-haiku-latest", 0)
	var got []string
	err := p.Stream(context.Background(), Request{Messages: []Message{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleUser, Content: "hi"},
	}}, func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.EqualValues(t, 1024, body["max_tokens"])
	system := body["system"].([]any)
	assert.Equal(t, "be helpful", system[0].(map[string]any)["text"])
}

func TestAnthropicCompleteWithImage(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"A cat."}],"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	img := &media.Image{Data: []byte("abc"), MIME: "image/jpeg"}
	p := NewAnthropicProvider("k", srv.URL, "claude-3-5-haiku-latest", 256)
	resp, err := p.Complete(context.Background(), Request{Messages: []Message{
		{Role: RoleUser, Content: "Describe this image", Images: []*media.Image{img}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "A cat.", resp.Content)

	msgs := body["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	source := content[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "image/jpeg", source["media_type"])
	assert.Equal(t, "YWJj", source["data"])
	assert.Equal(t, "Describe this image", content[1].(map[string]any)["text"])
}

func TestAnthropicAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL, "m", 0)
	_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "anthropic", apiErr.Provider)
}

func TestAnthropicEmptyReplyIsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"thinking","thinking":"hmm","signature":"sig"}],"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL, "claude-3-5-haiku-latest", 0)
	_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicStreamWithoutTextIsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, anthropicEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-haiku-latest","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":1}}}`))
		fmt.Fprint(w, anthropicEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":0}}`))
		fmt.Fprint(w, anthropicEvent("message_stop", `{"type":"message_stop"}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL, "claude-3-5-haiku-latest", 0)
	err := p.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
