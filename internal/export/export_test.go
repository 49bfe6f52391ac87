package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orionlabs/orion-go/internal/store"
)

func transcriptFixture() (*store.Session, []store.Message) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	sess := &store.Session{ID: "s1", Title: "trip planning", Model: "test-model", CreatedAt: now}
	msgs := []store.Message{
		{ID: 1, SessionID: "s1", Role: store.RoleUser, Content: "plan my trip", CreatedAt: now},
		{ID: 2, SessionID: "s1", Role: store.RoleAssistant, Content: "sure, where to?", CreatedAt: now.Add(time.Second)},
	}
	return sess, msgs
}

func TestRenderText(t *testing.T) {
	sess, msgs := transcriptFixture()
	body, contentType, err := Render(sess, msgs, FormatText)
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", contentType)
	require.Contains(t, body, "trip planning")
	require.Contains(t, body, "user:\nplan my trip")
	require.Contains(t, body, "assistant:\nsure, where to?")
}

func TestRenderDefaultsToText(t *testing.T) {
	sess, msgs := transcriptFixture()
	body, contentType, err := Render(sess, msgs, "")
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", contentType)
	require.Contains(t, body, "trip planning")
}

func TestRenderMarkdown(t *testing.T) {
	sess, msgs := transcriptFixture()
	body, contentType, err := Render(sess, msgs, FormatMarkdown)
	require.NoError(t, err)
	require.Equal(t, "text/markdown; charset=utf-8", contentType)
	require.Contains(t, body, "# trip planning")
	require.Contains(t, body, "`test-model`")
}

func TestRenderJSON(t *testing.T) {
	sess, msgs := transcriptFixture()
	body, contentType, err := Render(sess, msgs, FormatJSON)
	require.NoError(t, err)
	require.Equal(t, "application/json", contentType)

	var decoded struct {
		SessionID string          `json:"session_id"`
		Messages  []store.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	require.Equal(t, "s1", decoded.SessionID)
	require.Len(t, decoded.Messages, 2)
}

func TestRenderUnknownFormat(t *testing.T) {
	sess, msgs := transcriptFixture()
	_, _, err := Render(sess, msgs, Format("xml"))
	require.Error(t, err)
}
