package alert

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-systems/halcyon/pkg/types"
)

func testAlert() types.Alert {
	return types.Alert{
		Level:        types.AlertLevelWarning,
		InstanceID:   "home",
		AutomationID: "auto-1",
		Message:      "healing exhausted",
		Details:      map[string]interface{}{"cascadeId": "abc"},
		Timestamp:    time.Now(),
	}
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), testAlert()))
	require.NoError(t, sink.Send(context.Background(), testAlert()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var a types.Alert
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &a))
		assert.Equal(t, types.AlertLevelWarning, a.Level)
		assert.Equal(t, "auto-1", a.AutomationID)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 2, lines)
}

func TestFileSink_UnwritablePath(t *testing.T) {
	_, err := NewFileSink(filepath.Join(t.TempDir(), "missing", "alerts.log"))
	require.Error(t, err)
}

func TestWebhookSink_PostsAlert(t *testing.T) {
	var received types.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	require.NoError(t, sink.Send(context.Background(), testAlert()))
	assert.Equal(t, "healing exhausted", received.Message)
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL).Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestNewDispatcher_BuildsConfiguredSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	d, err := NewDispatcher([]types.AlertConfig{
		{Type: types.AlertConsole},
		{Type: types.AlertFile, Path: path},
	}, nil)
	require.NoError(t, err)
	require.Len(t, d.sinks, 2)
	assert.Equal(t, "console", d.sinks[0].Name())
	assert.Equal(t, "file", d.sinks[1].Name())
}

func TestNewDispatcher_RejectsInvalidConfig(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: types.AlertWebhook}}, nil)
	require.Error(t, err, "webhook without URL")

	_, err = NewDispatcher([]types.AlertConfig{{Type: "pager"}}, nil)
	require.Error(t, err, "unknown sink type")
}

func TestDispatcher_NotifyContinuesPastFailingSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "alerts.log")
	d, err := NewDispatcher([]types.AlertConfig{
		{Type: types.AlertWebhook, URL: srv.URL},
		{Type: types.AlertFile, Path: path},
	}, nil)
	require.NoError(t, err)

	d.Notify(context.Background(), testAlert())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "file sink still received the alert")
}
