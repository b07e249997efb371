package puppetdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benjamin-robertson/bolt/internal/config"
	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCertnames(t *testing.T) {
	var gotQuery string
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, queryPath, r.URL.Path)
		gotToken = r.Header.Get("X-Authentication")

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotQuery = body["query"]

		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"certname": "web1.example.com"},
			{"certname": "web2.example.com"},
		})
	}))
	defer server.Close()

	client := NewClient(config.PuppetDBConfig{ServerURL: server.URL, Token: "secret"})

	names, err := client.QueryCertnames(`inventory[certname]{ facts.os.family = "Debian" }`)
	require.NoError(t, err)

	assert.Equal(t, []string{"web1.example.com", "web2.example.com"}, names)
	assert.Equal(t, `inventory[certname]{ facts.os.family = "Debian" }`, gotQuery)
	assert.Equal(t, "secret", gotToken)
}

func TestQueryCertnamesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "query parse error", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(config.PuppetDBConfig{ServerURL: server.URL})

	_, err := client.QueryCertnames("nodes{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestQueryCertnamesUnconfigured(t *testing.T) {
	client := NewClient(config.PuppetDBConfig{})

	_, err := client.QueryCertnames("nodes{}")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestQueryCertnamesUnreachable(t *testing.T) {
	client := NewClient(config.PuppetDBConfig{ServerURL: "http://127.0.0.1:1"})

	_, err := client.QueryCertnames("nodes{}")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
}
