// Package puppetdb implements the queryable-store collaborator: resolving a
// PQL query into certnames through PuppetDB's HTTP query API.
package puppetdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benjamin-robertson/bolt/internal/config"
	"github.com/benjamin-robertson/bolt/internal/errors"
)

const queryPath = "/pdb/query/v4"

// Client queries PuppetDB over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client from PuppetDB config.
func NewClient(cfg config.PuppetDBConfig) *Client {
	return &Client{
		baseURL: cfg.ServerURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// QueryCertnames runs a PQL query and extracts the certname of every row in
// the response.
func (c *Client) QueryCertnames(query string) ([]string, error) {
	if c.baseURL == "" {
		return nil, errors.New(errors.ErrConfig,
			"PuppetDB is not configured",
			"Set puppetdb.server_url in bolt.yaml to use --query")
	}

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to encode PuppetDB query")
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid PuppetDB server URL: "+c.baseURL,
			"Check puppetdb.server_url in bolt.yaml")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Authentication", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Could not reach PuppetDB at "+c.baseURL,
			"Check connectivity and the puppetdb settings in bolt.yaml")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.New(errors.ErrExec,
			fmt.Sprintf("PuppetDB query failed with status %d", resp.StatusCode),
			string(detail))
	}

	var rows []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, errors.Wrap(err, "Could not parse PuppetDB response")
	}

	certnames := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["certname"].(string); ok {
			certnames = append(certnames, name)
		}
	}
	return certnames, nil
}
