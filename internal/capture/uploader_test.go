package capture

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/voxd/internal/calendar"
)

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: "test-token",
		Expiry:      time.Now().Add(time.Hour),
	})
}

func uploadRecord() *Record {
	return &Record{
		ID:         "media-1",
		SessionID:  "sess-1",
		CapturedAt: time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC),
		SHA256:     "abc123",
	}
}

func TestHTTPUploader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "sess-1", r.URL.Query().Get("session_id"))
		assert.Equal(t, "media-1", r.URL.Query().Get("idempotency_key"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("audio"), body)

		w.Write([]byte(`{"remote_id":"r-42"}`))
	}))
	defer srv.Close()

	u, err := NewHTTPUploader(UploaderConfig{BaseURL: srv.URL, TokenSource: staticToken()}, zap.NewNop())
	require.NoError(t, err)

	remoteID, err := u.Upload(context.Background(), uploadRecord(), []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, "r-42", remoteID)
}

func TestHTTPUploader_CredentialRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	u, err := NewHTTPUploader(UploaderConfig{BaseURL: srv.URL, TokenSource: staticToken()}, zap.NewNop())
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), uploadRecord(), []byte("audio"))
	assert.ErrorIs(t, err, calendar.ErrCredentialInvalid)
}

func TestHTTPUploader_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	u, err := NewHTTPUploader(UploaderConfig{BaseURL: srv.URL, TokenSource: staticToken()}, zap.NewNop())
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), uploadRecord(), []byte("audio"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, calendar.ErrCredentialInvalid)
}
