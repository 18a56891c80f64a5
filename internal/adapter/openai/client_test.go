package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urlwiz/domainwizard/internal/adapter/openai"
)

func TestSubmit(t *testing.T) {
	var uploadedPayload string
	var batchRequest map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key123", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/files":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "batch", r.FormValue("purpose"))
			file, _, err := r.FormFile("file")
			require.NoError(t, err)
			body, _ := io.ReadAll(file)
			uploadedPayload = string(body)
			json.NewEncoder(w).Encode(map[string]string{"id": "file_up"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/batches":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&batchRequest))
			json.NewEncoder(w).Encode(map[string]string{"id": "batch_123"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := openai.NewClient("key123", "text-embedding-3-small")
	c.SetBaseURL(srv.URL)

	id, err := c.Submit(context.Background(), strings.NewReader(`{"custom_id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "batch_123", id)
	assert.Equal(t, `{"custom_id":"x"}`, uploadedPayload)
	assert.Equal(t, "file_up", batchRequest["input_file_id"])
	assert.Equal(t, "/v1/embeddings", batchRequest["endpoint"])
	assert.Equal(t, "24h", batchRequest["completion_window"])
}

func TestPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batches/batch_123", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"status": "completed", "output_file_id": "file_out"})
	}))
	defer srv.Close()

	c := openai.NewClient("key123", "text-embedding-3-small")
	c.SetBaseURL(srv.URL)

	st, err := c.Poll(context.Background(), "batch_123")
	require.NoError(t, err)
	assert.True(t, st.Completed())
	assert.Equal(t, "file_out", st.OutputFileID)
}

func TestDownloadAndDelete(t *testing.T) {
	var deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files/file_out/content":
			w.Write([]byte("line1\nline2\n"))
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/files/file_out":
			deleted = true
			w.Write([]byte(`{"deleted": true}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := openai.NewClient("key123", "text-embedding-3-small")
	c.SetBaseURL(srv.URL)

	body, err := c.Download(context.Background(), "file_out")
	require.NoError(t, err)
	content, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "line1\nline2\n", string(content))

	require.NoError(t, c.DeleteFile(context.Background(), "file_out"))
	assert.True(t, deleted)
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req["model"])
		assert.Equal(t, "coffee startup", req["input"])
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}},
		})
	}))
	defer srv.Close()

	c := openai.NewClient("key123", "text-embedding-3-small")
	c.SetBaseURL(srv.URL)

	vec, err := c.Embed(context.Background(), "coffee startup")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestAPIErrorSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "insufficient_quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := openai.NewClient("key123", "text-embedding-3-small")
	c.SetBaseURL(srv.URL)

	_, err := c.Embed(context.Background(), "coffee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "insufficient_quota")
}
