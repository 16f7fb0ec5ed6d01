package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caikit/caikit-huggingface-demo/config"
)

func TestHubClient_Infer(t *testing.T) {
	var gotPath, gotRevision, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotRevision = r.URL.Query().Get("revision")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"summary_text":"ok"}]`))
	}))
	defer srv.Close()

	c := NewHubClient(context.Background(), config.HubConfig{InferenceURL: srv.URL + "/", Token: "hf_x", Timeout: time.Second})

	var out []map[string]string
	err := c.Infer(context.Background(), "org/model", "abc", "hello", nil, &out)
	require.NoError(t, err)

	assert.Equal(t, "/models/org/model", gotPath)
	assert.Equal(t, "abc", gotRevision)
	assert.Equal(t, "Bearer hf_x", gotAuth)
	assert.Equal(t, map[string]any{"inputs": "hello"}, gotBody)
	assert.Equal(t, []map[string]string{{"summary_text": "ok"}}, out)
}

func TestHubClient_InferBinaryAndErrors(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/vit":
			body, _ := io.ReadAll(r.Body)
			if r.Header.Get("Content-Type") != "image/png" || string(body) != string(png) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"label":"cat","score":1}]`))
		case "/img.png":
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write(png)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHubClient(context.Background(), config.HubConfig{InferenceURL: srv.URL, Token: "hf_x"})
	c.SetRetryCount(0)
	ctx := context.Background()

	var labels []map[string]any
	require.NoError(t, c.InferBinary(ctx, "vit", "", png, &labels))
	assert.Len(t, labels, 1)

	b, err := c.Download(ctx, srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, png, b)

	_, err = c.Download(ctx, srv.URL+"/missing")
	assert.Error(t, err)

	assert.Error(t, c.Infer(ctx, "missing", "", "x", nil, &labels))
}
