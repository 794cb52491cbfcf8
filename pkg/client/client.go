// Package client talks to the cleansing-engine HTTP API. It is the transport
// used by the apply-labels workflow outside the server process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/logging"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// DefaultTimeout is the maximum time to wait for a server response.
const DefaultTimeout = 30 * time.Second

// Client provides access to the labels and cleansing endpoints of one organization.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	organizationID int64
	logger         *zap.Logger
}

// NewClient creates a client bound to organizationID. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, organizationID int64, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		organizationID: organizationID,
		logger:         logger.Named("client"),
	}
}

// envelope mirrors the server's success wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// SubmitBulkUpdate sends one bulk label update. Non-2xx responses are returned
// as *apperrors.TransportError carrying the status code; network failures as a
// TransportError with StatusCode 0.
func (c *Client) SubmitBulkUpdate(ctx context.Context, req *models.BulkUpdateRequest) (*models.ServerLabelState, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bulk update: %w", err)
	}

	var state models.ServerLabelState
	if err := c.do(ctx, http.MethodPut, []string{"api", "labels", "bulk_update"}, nil, body, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetCleansingResults fetches the cleansing results of one import file.
func (c *Client) GetCleansingResults(ctx context.Context, importFileID int64) (*models.CleansingResults, error) {
	query := url.Values{"import_file_id": {strconv.FormatInt(importFileID, 10)}}

	var results models.CleansingResults
	if err := c.do(ctx, http.MethodGet, []string{"api", "cleansing", "results"}, query, nil, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// ListColors fetches the label color palette.
func (c *Client) ListColors(ctx context.Context) ([]models.ColorOption, error) {
	var colors []models.ColorOption
	if err := c.do(ctx, http.MethodGet, []string{"api", "labels", "colors"}, nil, nil, &colors); err != nil {
		return nil, err
	}
	return colors, nil
}

func (c *Client) do(ctx context.Context, method string, segments []string, query url.Values, body []byte, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("organization_id", strconv.FormatInt(c.organizationID, 10))

	endpoint, err := buildURL(c.baseURL, query, segments...)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Calling cleansing-engine",
		zap.String("method", method),
		zap.String("url", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperrors.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperrors.TransportError{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = logging.TruncateString(string(raw), logging.MaxBodyLogLength)
		}
		c.logger.Error("cleansing-engine returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("error", env.Error),
			zap.String("message", msg))
		return &apperrors.TransportError{StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return &apperrors.TransportError{StatusCode: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &apperrors.TransportError{StatusCode: resp.StatusCode, Message: "malformed response data", Err: err}
	}
	return nil
}

// buildURL constructs a URL by parsing the base, joining path segments and
// attaching the query.
func buildURL(baseURL string, query url.Values, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)
	u.RawQuery = query.Encode()

	return u.String(), nil
}
