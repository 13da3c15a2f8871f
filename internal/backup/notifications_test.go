package backup

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"krisa-backup/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTelegramSinkForTest(t *testing.T, handler http.HandlerFunc) *TelegramSink {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sink := NewTelegramSink("test-token", "42", logging.NewDefaultLogger())
	sink.baseURL = server.URL
	return sink
}

func writeArtifact(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "krisa-db-21-01-26.tar.gz.gpg")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0600))
	return path
}

func TestTelegramSink_Send(t *testing.T) {
	var gotPath, gotChatID, gotCaption, gotFilename, gotFileBody string

	sink := newTelegramSinkForTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotChatID = r.FormValue("chat_id")
		gotCaption = r.FormValue("caption")

		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		body, err := io.ReadAll(file)
		require.NoError(t, err)
		gotFileBody = string(body)

		w.Write([]byte(`{"ok":true}`))
	})

	artifact := writeArtifact(t, "encrypted-bytes")
	err := sink.Send(context.Background(), artifact, "Backup postgres 21-01-26")

	require.NoError(t, err)
	assert.Equal(t, "/bottest-token/sendDocument", gotPath)
	assert.Equal(t, "42", gotChatID)
	assert.Equal(t, "Backup postgres 21-01-26", gotCaption)
	assert.Equal(t, "krisa-db-21-01-26.tar.gz.gpg", gotFilename)
	assert.Equal(t, "encrypted-bytes", gotFileBody)
}

func TestTelegramSink_Send_HTTPError(t *testing.T) {
	sink := newTelegramSinkForTest(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"Unauthorized"}`, http.StatusUnauthorized)
	})

	err := sink.Send(context.Background(), writeArtifact(t, "x"), "caption")

	require.Error(t, err)
	assert.True(t, IsDeliveryError(err))
	assert.True(t, IsRecoverable(err))
}

func TestTelegramSink_Send_APIRejection(t *testing.T) {
	sink := newTelegramSinkForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})

	err := sink.Send(context.Background(), writeArtifact(t, "x"), "caption")

	require.Error(t, err)
	assert.True(t, IsDeliveryError(err))

	var pErr *PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "Bad Request: chat not found", pErr.Context["description"])
}

func TestTelegramSink_Send_MissingArtifact(t *testing.T) {
	sink := newTelegramSinkForTest(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made for a missing artifact")
	})

	err := sink.Send(context.Background(), filepath.Join(t.TempDir(), "gone.tar.gz.gpg"), "caption")

	assert.True(t, IsNotFoundError(err))
}

func TestTelegramSink_Send_Unconfigured(t *testing.T) {
	sink := NewTelegramSink("", "", logging.NewDefaultLogger())

	assert.False(t, sink.IsEnabled())

	err := sink.Send(context.Background(), "whatever", "caption")
	assert.True(t, IsConfigurationError(err))
}

func TestTelegramSink_Metadata(t *testing.T) {
	sink := NewTelegramSink("token", "42", nil)

	assert.Equal(t, "telegram", sink.GetType())
	assert.True(t, sink.IsEnabled())
}
