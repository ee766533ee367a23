package fipe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClient_Fetch_Success(t *testing.T) {
	var gotPath, gotToken, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get(SubscriptionTokenHeader)
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[2021,2022]`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL + "/", Token: "secret-token"})
	body, err := client.Fetch(context.Background(), "/cars/brands/59/models/5940/years")

	require.NoError(t, err)
	assert.JSONEq(t, `[2021,2022]`, string(body))
	assert.Equal(t, "/cars/brands/59/models/5940/years", gotPath)
	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "application/json", gotContentType)
}

func TestClient_Fetch_EmptyTokenStillSent(t *testing.T) {
	present := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header[SubscriptionTokenHeader]
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Fetch(context.Background(), "/cars/brands")
	require.NoError(t, err)
	assert.True(t, present, "token header should be sent even when empty")
}

func TestClient_Fetch_UpstreamError(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "not found", status)
			}))
			defer srv.Close()

			_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Fetch(context.Background(), "/cars/brands")

			var ue *UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, status, ue.StatusCode)
			assert.Contains(t, ue.Body, "not found")
			assert.True(t, IsUpstreamStatus(err, status))
		})
	}
}

func TestClient_Fetch_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Fetch(context.Background(), "/cars/brands")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestClient_Fetch_BodyOverLimit(t *testing.T) {
	// a JSON string one byte past the limit
	payload := `"` + strings.Repeat("a", maxBodySize-1) + `"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := NewClient(ClientConfig{BaseURL: srv.URL, Logger: &logger.Logger{Logger: zap.New(core)}})

	_, err := client.Fetch(context.Background(), "/cars/brands")
	require.ErrorIs(t, err, ErrTooLarge)
	assert.False(t, errors.Is(err, ErrDecode))

	entries := logs.FilterMessage("FIPE response exceeds size limit").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "/cars/brands", entries[0].ContextMap()["path"])
}

func TestClient_Fetch_BodyAtLimit(t *testing.T) {
	payload := `"` + strings.Repeat("a", maxBodySize-2) + `"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	body, err := NewClient(ClientConfig{BaseURL: srv.URL}).Fetch(context.Background(), "/cars/brands")
	require.NoError(t, err)
	assert.Len(t, body, maxBodySize)
}

func TestClient_Fetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: url}).Fetch(context.Background(), "/cars/brands")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := client.Fetch(context.Background(), "/cars/brands")

	assert.ErrorIs(t, err, ErrTransport)
	assert.False(t, errors.Is(err, ErrDecode))
}
