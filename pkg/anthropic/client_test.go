package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "claude-sonnet-4-5-20250929"

// messageServer replies to every call with a single text block and records
// the decoded request body.
func messageServer(t *testing.T, text string, body *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		if body != nil {
			raw, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(raw, body))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_hz_01",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": text}},
			"model":       testModel,
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 40, "output_tokens": 12},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func rewriteRequest() MessageRequest {
	return MessageRequest{
		Model:     testModel,
		MaxTokens: 512,
		Messages:  []Message{{Role: "user", Content: "Rewrite this headline for a viral feed."}},
	}
}

func TestCreateMessage(t *testing.T) {
	srv := messageServer(t, "Nine gadgets you missed", nil)
	c := NewClient("k", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	resp, err := c.CreateMessage(context.Background(), rewriteRequest())
	require.NoError(t, err)
	assert.Equal(t, "msg_hz_01", resp.ID)
	assert.Equal(t, testModel, resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "Nine gadgets you missed", resp.Text)
	assert.Equal(t, int64(52), resp.Usage.Total())
}

func TestCreateMessage_RequestBody(t *testing.T) {
	var body map[string]any
	srv := messageServer(t, "ok", &body)
	c := NewClient("k", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	temp, topP := 0.4, 0.8
	req := rewriteRequest()
	req.System = "You write punchy headlines."
	req.SystemCacheTTL = "1h"
	req.Temperature = &temp
	req.TopP = &topP

	_, err := c.CreateMessage(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, body["temperature"], 1e-9)
	assert.InDelta(t, 0.8, body["top_p"], 1e-9)
	assert.InDelta(t, 512, body["max_tokens"], 1e-9)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	block := system[0].(map[string]any)
	assert.Equal(t, "You write punchy headlines.", block["text"])
	cache, ok := block["cache_control"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ephemeral", cache["type"])
	assert.Equal(t, "1h", cache["ttl"])
}

func TestCreateMessage_NoSystemNoSampling(t *testing.T) {
	var body map[string]any
	srv := messageServer(t, "ok", &body)
	c := NewClient("k", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	_, err := c.CreateMessage(context.Background(), rewriteRequest())
	require.NoError(t, err)
	for _, key := range []string{"system", "temperature", "top_p"} {
		assert.NotContains(t, body, key)
	}
}

func TestCreateMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	c := NewClient("k", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := c.CreateMessage(context.Background(), rewriteRequest())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Zero(t, StatusCode(io.ErrUnexpectedEOF))
}

func TestBuildParams_Roles(t *testing.T) {
	params := buildParams(MessageRequest{
		Model:     testModel,
		MaxTokens: 64,
		Messages: []Message{
			{Role: "user", Content: "draft"},
			{Role: "assistant", Content: "Draft headline"},
			{Role: "editor", Content: "shorter"},
		},
	})
	require.Len(t, params.Messages, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, params.Messages[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, params.Messages[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, params.Messages[2].Role)
	assert.Empty(t, params.System)
}

func TestBuildParams_SystemCache(t *testing.T) {
	plain := buildParams(MessageRequest{System: "be brief"})
	require.Len(t, plain.System, 1)
	assert.Equal(t, "be brief", plain.System[0].Text)
	assert.Empty(t, plain.System[0].CacheControl.TTL)

	cached := buildParams(MessageRequest{System: "be brief", SystemCacheTTL: "5m"})
	require.Len(t, cached.System, 1)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("5m"), cached.System[0].CacheControl.TTL)
}

func TestReadMessage(t *testing.T) {
	resp := readMessage(&sdk.Message{
		ID:         "msg_1",
		Model:      testModel,
		StopReason: "max_tokens",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Part one. "},
			{Type: "thinking"},
			{Type: "text", Text: "Part two."},
		},
		Usage: sdk.Usage{
			InputTokens:              100,
			OutputTokens:             20,
			CacheCreationInputTokens: 300,
			CacheReadInputTokens:     700,
		},
	})
	assert.Equal(t, "Part one. Part two.", resp.Text)
	assert.Equal(t, "max_tokens", resp.StopReason)
	assert.Equal(t, int64(300), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(1120), resp.Usage.Total())

	empty := readMessage(&sdk.Message{ID: "msg_2"})
	assert.Empty(t, empty.Text)
	assert.Zero(t, empty.Usage.Total())
}
