package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/pkg/config"
)

func TestElasticsearch_Write(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	es, err := NewElasticsearch(config.Output{Type: config.OutputElasticsearch, Host: srv.URL}, discardLogger)
	require.NoError(t, err)

	d := testDelivery(t, 77, map[string]any{"text": "hi"})
	require.NoError(t, es.Write(context.Background(), d))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/telegram-2024.03.15/_doc/77", gotPath)
	assert.NotContains(t, gotBody, "id")
	assert.NotContains(t, gotBody, "date")
	assert.Equal(t, "2024-03-15T10:20:30Z", gotBody["timestamp"])
	assert.Equal(t, "hi", gotBody["text"])

	// Общий документ не изменяется.
	assert.Equal(t, 77, d.Document.Get("id", nil))
}

func TestElasticsearch_WriteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	}))
	defer srv.Close()

	es, err := NewElasticsearch(config.Output{
		Type:        config.OutputElasticsearch,
		Host:        srv.URL,
		IndexFormat: "tg-%Y",
	}, discardLogger)
	require.NoError(t, err)

	err = es.Write(context.Background(), testDelivery(t, 1, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tg-2024")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}
