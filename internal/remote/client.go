package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/project-sync/internal/errors"
	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

const (
	// apiPrefix is prepended to every endpoint.
	apiPrefix = "/developer/api/v1"

	// defaultTimeout is used when Options.Timeout is zero.
	defaultTimeout = 30 * time.Second

	// statusSuccess is the envelope status of a successful call.
	statusSuccess = "success"
)

// APIError is returned when the remote answers with a non-success
// envelope. It matches apperrors.ErrRemote with errors.Is.
type APIError struct {
	Endpoint   string
	HTTPStatus int
	Status     string
	Message    string
	Errors     []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no message"
	}

	return fmt.Sprintf("API %s (%d, status %q): %s", e.Endpoint, e.HTTPStatus, e.Status, msg)
}

func (e *APIError) Is(target error) bool { return target == apperrors.ErrRemote }

// TransportError wraps a network or TLS failure. It matches
// apperrors.ErrTransport with errors.Is.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == apperrors.ErrTransport }

// IsTransport reports whether err (or any error in its chain) is a
// TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Options tune the HTTP client.
type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	UserAgent          string
}

// Client talks to the tenant file API. Auth is fixed at construction;
// build a new Client to change credentials.
type Client struct {
	http *req.Client
}

// NewClient creates an API client for baseURL with the given auth.
func NewClient(baseURL string, auth Auth, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	if opts.UserAgent == "" {
		opts.UserAgent = "project-sync"
	}

	hc := req.C().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(opts.Timeout).
		SetUserAgent(opts.UserAgent).
		SetCommonHeader("Accept", "application/json")

	if auth.Token != "" {
		hc.SetCommonBearerAuthToken(auth.Token)
	}

	if opts.InsecureSkipVerify {
		hc.EnableInsecureSkipVerify()
	}

	return &Client{http: hc}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// post sends a JSON POST request and returns the envelope's data field.
func (c *Client) post(ctx context.Context, endpoint string, body interface{}) (gjson.Result, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(apiPrefix + endpoint)
	if err != nil {
		return gjson.Result{}, &TransportError{Err: fmt.Errorf("sending request to %s: %w", endpoint, err)}
	}

	respBody, err := resp.ToBytes()
	if err != nil {
		return gjson.Result{}, &TransportError{Err: fmt.Errorf("reading response from %s: %w", endpoint, err)}
	}

	code := resp.GetStatusCode()
	if code == http.StatusUnauthorized {
		return gjson.Result{}, fmt.Errorf("API %s: %w", endpoint, apperrors.ErrInvalidToken)
	}

	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, &APIError{
			Endpoint:   endpoint,
			HTTPStatus: code,
			Message:    "non-JSON response: " + sanitizeResponseBody(respBody),
		}
	}

	envelope := gjson.ParseBytes(respBody)

	status := envelope.Get("status").String()
	if status != statusSuccess {
		return gjson.Result{}, &APIError{
			Endpoint:   endpoint,
			HTTPStatus: code,
			Status:     status,
			Message:    envelope.Get("message").String(),
			Errors:     flattenErrors(envelope.Get("errors")),
		}
	}

	return envelope.Get("data"), nil
}

// flattenErrors turns the envelope's errors field into plain strings.
// Arrays yield their elements; objects yield "field: message" pairs
// sorted by field.
func flattenErrors(v gjson.Result) []string {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}

	var out []string

	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			out = append(out, item.String())
		}
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			if value.IsArray() {
				for _, item := range value.Array() {
					out = append(out, key.String()+": "+item.String())
				}
			} else {
				out = append(out, key.String()+": "+value.String())
			}

			return true
		})
		sort.Strings(out)
	default:
		out = append(out, v.String())
	}

	return out
}

// Manifest fetches the tenant's file manifest. Timestamps are accepted
// as numbers or numeric strings.
func (c *Client) Manifest(ctx context.Context, tenant string) ([]ManifestEntry, error) {
	data, err := c.post(ctx, "/manifest/"+tenant, map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}

	list := data.Get("file_manifest")
	if !list.Exists() {
		return nil, fmt.Errorf("fetching manifest: %w", &APIError{
			Endpoint: "/manifest/" + tenant,
			Status:   statusSuccess,
			Message:  "response has no file_manifest",
		})
	}

	var entries []ManifestEntry

	for _, item := range list.Array() {
		entries = append(entries, ManifestEntry{
			Location:     item.Get("location").String(),
			Hash:         item.Get("hash").String(),
			LastModified: item.Get("last_modified").Int(),
		})
	}

	return entries, nil
}

// Upload sends one write (create, update, delete or directory) to the
// tenant store.
func (c *Client) Upload(ctx context.Context, tenant string, payload UploadPayload) error {
	if _, err := c.post(ctx, "/watch/"+tenant, payload); err != nil {
		return fmt.Errorf("uploading %s: %w", payload.ActionType, err)
	}

	return nil
}

// Download fetches one file and returns its base64 content as sent by
// the remote. wirePath is the file's path as the remote names it.
func (c *Client) Download(ctx context.Context, tenant, wirePath string) (string, error) {
	data, err := c.post(ctx, "/download/"+tenant, DownloadRequest{Directory: wirePath})
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", wirePath, err)
	}

	content := data.Get("content")
	if !content.Exists() {
		return "", fmt.Errorf("downloading %s: %w", wirePath, &APIError{
			Endpoint: "/download/" + tenant,
			Status:   statusSuccess,
			Message:  "response has no content",
		})
	}

	return content.String(), nil
}

// RunCommand passes a command line to the tenant's project runner and
// returns its output.
func (c *Client) RunCommand(ctx context.Context, tenant, command string) (string, error) {
	data, err := c.post(ctx, "/command/"+tenant, CommandRequest{Command: command})
	if err != nil {
		return "", fmt.Errorf("running command: %w", err)
	}

	return data.Get("output").String(), nil
}
