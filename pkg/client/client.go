// Package client posts scripts to the query endpoint of a batch server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

const (
	DefaultPath    = "/query"
	defaultTimeout = 5 * time.Minute
)

// Config configures a Client. Encoding and Markers must match the server.
type Config struct {
	BaseURL string
	Path    string
	Token   string
	Timeout time.Duration

	Encoding batchsql.Encoding
	// EncodeMarkers replaces semicolons and newlines inside literals and
	// comments with markers before the script is sent.
	EncodeMarkers bool
	Markers       batchsql.MarkerProtocol
}

// Client talks to one batch server.
type Client struct {
	http *resty.Client
	cfg  Config
}

// RequestError is a non-2xx response from the server.
type RequestError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"error"`
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "batchctl")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &Client{http: client, cfg: cfg}
}

// Prepare returns the wire form of script: markers first, then the payload
// encoding.
func (c *Client) Prepare(script string) (string, error) {
	if c.cfg.EncodeMarkers {
		encoded, err := batchsql.EncodeMarkers(script, c.cfg.Markers)
		if err != nil {
			return "", fmt.Errorf("failed to encode markers: %w", err)
		}
		script = encoded
	}
	return batchsql.EncodePayload(script, c.cfg.Encoding)
}

// Run sends script with params and returns the result of the last
// successful statement, or nil when the server returned null.
func (c *Client) Run(ctx context.Context, script string, params batchsql.Parameters) (*store.Result, error) {
	raw, err := c.RunRaw(ctx, script, params)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var result store.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// RunRaw is Run without decoding the data member.
func (c *Client) RunRaw(ctx context.Context, script string, params batchsql.Parameters) (json.RawMessage, error) {
	query, err := c.Prepare(script)
	if err != nil {
		return nil, err
	}

	var (
		out     dataResponse
		failure errorEnvelope
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(batchsql.ScriptRequest{Query: query, Parameters: params}).
		SetResult(&out).
		SetError(&failure).
		Post(c.cfg.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to send batch: %w", err)
	}

	if resp.IsError() {
		return nil, &RequestError{
			StatusCode: resp.StatusCode(),
			Message:    failure.Error.Message,
			Code:       failure.Error.Extensions.Code,
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &RequestError{StatusCode: resp.StatusCode()}
	}
	return out.Data, nil
}

// IsBadRequest reports whether err is a 400 from the server.
func IsBadRequest(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusBadRequest
}
