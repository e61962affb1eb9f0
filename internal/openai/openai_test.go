package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spacecat/sage/internal/models"
	"github.com/spacecat/sage/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestCaptionSendsVisionMessage(t *testing.T) {
	var got chatRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"A red barn."}}]}`))
	}))
	defer srv.Close()

	img := writeImage(t, []byte{0xff, 0xd8, 0xff, 0xe0})
	caption, err := New(srv.Client()).Caption(context.Background(), providers.Request{
		ImagePath: img,
		Prompt:    "Describe it.",
		Endpoint:  models.ModelEndpointConfig{ModelType: models.ModelTypeVLLM, APIKey: "k", Model: "m", BaseURL: srv.URL + "/v1/"},
	})
	require.NoError(t, err)

	assert.Equal(t, "A red barn.", caption)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, providers.DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "Describe it.", got.Messages[0].Content[0].Text)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,"))
}

func TestCaptionErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: providers.ErrEmptyResponse},
		{name: "empty content", status: http.StatusOK, body: `{"choices":[{"message":{"content":""}}]}`, wantErr: providers.ErrEmptyResponse},
		{name: "not json", status: http.StatusOK, body: `<html>`, wantErr: providers.ErrMalformedResponse},
	}

	img := writeImage(t, []byte("jpeg"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(nil).Caption(context.Background(), providers.Request{
				ImagePath: img,
				Endpoint:  models.ModelEndpointConfig{APIKey: "k", Model: "m", BaseURL: srv.URL},
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCaptionHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(nil).Caption(context.Background(), providers.Request{
		ImagePath: writeImage(t, []byte("jpeg")),
		Endpoint:  models.ModelEndpointConfig{ModelType: models.ModelTypeOpenAI, APIKey: "k", Model: "m", BaseURL: srv.URL},
	})
	var httpErr *providers.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
}

func TestCaptionImageRead(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(t.TempDir(), "nope.jpg")},
		{name: "empty", path: writeImage(t, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Caption(context.Background(), providers.Request{ImagePath: tt.path})
			assert.ErrorIs(t, err, providers.ErrImageRead)
		})
	}
}

func TestCaptionCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Caption(ctx, providers.Request{
		ImagePath: writeImage(t, []byte("jpeg")),
		Endpoint:  models.ModelEndpointConfig{APIKey: "k", Model: "m", BaseURL: srv.URL},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
