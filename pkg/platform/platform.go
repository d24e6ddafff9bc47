// Package platform models the out-of-scope remote platform REST
// client as a minimal interface plus a thin net/http implementation:
// just enough surface for UploadEngine and StatusHub's QueueUpload
// handler to have something real to call. It is deliberately not a
// full platform SDK.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pennsieve/agent/internal/agenterrors"
)

// Session is the result of a successful login: a token plus the
// organization/profile it was issued for.
type Session struct {
	Token            string
	OrganizationID   string
	OrganizationName string
	Environment      string
}

// PreviewRequest describes a pending set of local files to upload,
// as sent to the platform's upload-preview endpoint.
type PreviewRequest struct {
	Dataset   string
	Package   string
	Files     []string
	Recursive bool
	Append    bool
}

// PreviewedFile is one file the platform assigned an import group to,
// ready to become an upload_record row.
type PreviewedFile struct {
	Path              string
	ImportID          string
	ChunkSize         int64
	MultipartUploadID string
	UploadService     bool
}

// CompleteUploadRequest is the platform's "complete upload" call,
// closing out an import group once every chunk has been sent.
type CompleteUploadRequest struct {
	OrganizationID string
	ImportID       string
	Dataset        string
	Package        string
	Append         bool
}

// Client is everything UploadEngine and the QueueUpload handler need
// from the platform. Login refreshes (or creates) a Session; a
// UserRecord's cached token is reused until it is more than 90
// minutes old, per spec, before Login is called again.
type Client interface {
	Login(ctx context.Context, profile string) (*Session, error)
	PreviewUpload(ctx context.Context, session *Session, req PreviewRequest) ([]PreviewedFile, error)
	CompleteUpload(ctx context.Context, session *Session, req CompleteUploadRequest) error
}

// HTTPClient is a minimal real implementation of Client, talking JSON
// over net/http to the platform's API host. It is intentionally thin:
// the platform's actual authenticated REST client is out of scope.
type HTTPClient struct {
	baseURL string
	apiKey  string
	apiSecret string
	http    *http.Client
}

// NewHTTPClient builds a Client against apiHost, authenticating future
// requests with the given API key/secret pair (spec.md §6's
// PENNSIEVE_API_TOKEN/SECRET environment variables).
func NewHTTPClient(apiHost, apiKey, apiSecret string) *HTTPClient {
	return &HTTPClient{
		baseURL:   apiHost,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) Login(ctx context.Context, profile string) (*Session, error) {
	var body struct {
		APIKey    string `json:"api_key"`
		APISecret string `json:"api_secret"`
	}
	body.APIKey = c.apiKey
	body.APISecret = c.apiSecret

	var resp struct {
		SessionToken     string `json:"session_token"`
		OrganizationID   string `json:"organization_id"`
		OrganizationName string `json:"organization_name"`
	}
	if err := c.do(ctx, http.MethodPost, "/authentication/login", body, &resp); err != nil {
		return nil, err
	}
	return &Session{
		Token:            resp.SessionToken,
		OrganizationID:   resp.OrganizationID,
		OrganizationName: resp.OrganizationName,
		Environment:      profile,
	}, nil
}

func (c *HTTPClient) PreviewUpload(ctx context.Context, session *Session, req PreviewRequest) ([]PreviewedFile, error) {
	var resp struct {
		Files []PreviewedFile `json:"files"`
	}
	if err := c.doAuthed(ctx, session, http.MethodPost, "/upload/preview", req, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *HTTPClient) CompleteUpload(ctx context.Context, session *Session, req CompleteUploadRequest) error {
	return c.doAuthed(ctx, session, http.MethodPost, "/upload/complete", req, nil)
}

func (c *HTTPClient) doAuthed(ctx context.Context, session *Session, method, path string, body, out any) error {
	if session == nil || session.Token == "" {
		return agenterrors.New(agenterrors.CodeAuthRequired, "no platform session")
	}
	return c.do(ctx, method, path, body, out, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+session.Token)
	})
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, mutators ...func(*http.Request)) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return agenterrors.Wrap(agenterrors.CodeInvalidArgument, "encoding platform request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "building platform request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutators {
		m(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeUnavailable, "calling platform", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return agenterrors.New(agenterrors.CodeAuthRequired, "platform session expired")
	}
	if resp.StatusCode >= 300 {
		return agenterrors.New(agenterrors.CodeUnavailable, fmt.Sprintf("platform returned %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "decoding platform response", err)
	}
	return nil
}
