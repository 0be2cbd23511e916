// Package remote provides the HTTP implementation of the document store client.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
)

// Config holds remote store connection configuration.
type Config struct {
	// Endpoint is the base URL of the document store API.
	Endpoint string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds each call so a hung connection cannot indefinitely
	// delay success/failure classification. Defaults to 5 seconds.
	Timeout time.Duration
}

// RESTClient implements Client against a JSON-over-HTTP document store.
//
// Wire layout:
//
//	GET    {endpoint}/v1/{collection}/{id}
//	GET    {endpoint}/v1/{collection}
//	POST   {endpoint}/v1/{collection}/query    (Query as JSON body)
//	PUT    {endpoint}/v1/{collection}/{id}
//	PATCH  {endpoint}/v1/{collection}/{id}
//	DELETE {endpoint}/v1/{collection}/{id}
type RESTClient struct {
	config     *Config
	httpClient *http.Client
}

// NewRESTClient creates a RESTClient.
func NewRESTClient(config *Config) *RESTClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &RESTClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// GetByID implements Client.GetByID.
func (c *RESTClient) GetByID(ctx context.Context, collection, id string) (Document, error) {
	resp, err := c.do(ctx, http.MethodGet, c.docURL(collection, id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteRejected, "failed to decode remote document", err)
	}
	return RestoreAbsent(doc), nil
}

// GetAll implements Client.GetAll.
func (c *RESTClient) GetAll(ctx context.Context, collection string) ([]Document, error) {
	resp, err := c.do(ctx, http.MethodGet, c.collectionURL(collection), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}
	return decodeDocuments(resp.Body)
}

// Query implements Client.Query.
func (c *RESTClient) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode query", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.collectionURL(collection)+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}
	return decodeDocuments(resp.Body)
}

// Put implements Client.Put. The document is sanitized so unset fields
// travel as explicit null markers.
func (c *RESTClient) Put(ctx context.Context, collection, id string, doc Document) error {
	return c.write(ctx, http.MethodPut, collection, id, doc)
}

// Update implements Client.Update.
func (c *RESTClient) Update(ctx context.Context, collection, id string, partial Document) error {
	return c.write(ctx, http.MethodPatch, collection, id, partial)
}

// Delete implements Client.Delete.
func (c *RESTClient) Delete(ctx context.Context, collection, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.docURL(collection, id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// deleting an absent document is not an error
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return classifyStatus(resp)
}

func (c *RESTClient) write(ctx context.Context, method, collection, id string, doc Document) error {
	body, err := json.Marshal(SanitizeForWrite(doc))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode document", err)
	}

	resp, err := c.do(ctx, method, c.docURL(collection, id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return classifyStatus(resp)
}

func (c *RESTClient) do(ctx context.Context, method, urlStr string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to build remote request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// transport failures and timeouts are all "remote unreachable"
		return nil, apperrors.Wrap(apperrors.ErrRemoteUnreachable, "remote request failed", err)
	}
	return resp, nil
}

func (c *RESTClient) collectionURL(collection string) string {
	return fmt.Sprintf("%s/v1/%s", c.config.Endpoint, url.PathEscape(collection))
}

func (c *RESTClient) docURL(collection, id string) string {
	return c.collectionURL(collection) + "/" + url.PathEscape(id)
}

func decodeDocuments(r io.Reader) ([]Document, error) {
	var docs []Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteRejected, "failed to decode remote documents", err)
	}
	for i := range docs {
		docs[i] = RestoreAbsent(docs[i])
	}
	return docs, nil
}

// classifyStatus maps a non-2xx response to the error taxonomy: permission
// errors are distinguished for logging only, availability errors cover
// timeouts and overload, anything else is a rejection.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("remote returned status %d: %s", resp.StatusCode, string(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.New(apperrors.ErrRemotePermissionDenied, msg)
	case resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500:
		return apperrors.New(apperrors.ErrRemoteUnreachable, msg)
	default:
		return apperrors.New(apperrors.ErrRemoteRejected, msg)
	}
}
