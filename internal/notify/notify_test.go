package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEvent = Event{
	Kind:       KindBackupPartial,
	ProjectID:  "proj-1",
	BackupName: "proj-1-20251001T020000Z.tar.gz",
	Status:     "partial",
	Message:    "replication: context deadline exceeded",
	OccurredAt: time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC),
}

func TestWebhook_GenericPayload(t *testing.T) {
	var got GenericWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "generic").Notify(context.Background(), testEvent)
	require.NoError(t, err)
	assert.Equal(t, KindBackupPartial, got.Event)
	assert.Equal(t, "proj-1", got.Data.ProjectID)
	assert.Equal(t, testEvent.BackupName, got.Data.BackupName)
}

func TestWebhook_SlackPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "slack").Notify(context.Background(), testEvent))

	blocks, ok := got["blocks"].([]any)
	require.True(t, ok)
	assert.Len(t, blocks, 3)
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "generic").Notify(context.Background(), testEvent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook returned 502")
}

func TestLog_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(zerolog.New(&buf))

	require.NoError(t, n.Notify(context.Background(), testEvent))
	assert.Contains(t, buf.String(), `"kind":"backup.partial"`)
	assert.Contains(t, buf.String(), `"project":"proj-1"`)
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, Event) error {
	f.calls++
	return errors.New("down")
}

func TestMulti_TriesAllAndJoinsErrors(t *testing.T) {
	a, b := &failingNotifier{}, &failingNotifier{}
	err := Multi{a, NewLog(zerolog.Nop()), b}.Notify(context.Background(), testEvent)

	require.Error(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}
