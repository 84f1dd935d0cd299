package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello voters", body["text"])
		assert.Equal(t, "model-1", body["model_id"])

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	audio, err := NewClient(srv.URL, "key", "voice-1", "model-1").Synthesize(context.Background(), "Hello voters")
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", audio.ContentType)
	assert.Equal(t, []byte("ID3audio"), audio.Data)
}

func TestSynthesizeFallsBackToBrowser(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		_, err := NewClient(srv.URL, "key", "", "").Synthesize(context.Background(), "Hello")
		assert.ErrorIs(t, err, ErrUseBrowser, "status %d", status)
		srv.Close()
	}
}

func TestSynthesizeNetworkErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "key", "", "").Synthesize(context.Background(), "Hello")
	assert.ErrorIs(t, err, ErrUseBrowser)
}

func TestSynthesizeWithoutKey(t *testing.T) {
	c := NewClient("", "", "", "")
	assert.False(t, c.Enabled())
	_, err := c.Synthesize(context.Background(), "Hello")
	assert.ErrorIs(t, err, ErrUseBrowser)
}

func TestSynthesizeServerErrorIsNotBrowserFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key", "", "").Synthesize(context.Background(), "Hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUseBrowser)
}

func TestSynthesizeEmptyText(t *testing.T) {
	_, err := NewClient("", "key", "", "").Synthesize(context.Background(), "   ")
	assert.Error(t, err)
}
