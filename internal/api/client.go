package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

const (
	eventsPath = "/events"
	uploadPath = "/upload-ics"

	defaultTimeout = 15 * time.Second
	// maxBodyBytes caps how much of an API response is read.
	maxBodyBytes = 16 << 20
)

// Client talks to the remote events API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the API rooted at baseURL. A zero timeout
// uses a 15 second default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithHTTP lets tests and callers supply their own http.Client.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// Query selects events from the API. Start is required; End and ICSURL are
// optional. Supplying ICSURL asks the backend to merge events from that
// calendar.
type Query struct {
	Start  time.Time
	End    time.Time
	ICSURL string
}

// Values encodes the query string. Timestamps are sent as UTC RFC 3339
// with millisecond precision.
func (q Query) Values() (url.Values, error) {
	if q.Start.IsZero() {
		return nil, fmt.Errorf("%w: start time is required", ErrInvalidInput)
	}
	v := url.Values{}
	v.Set("start_time", formatTime(q.Start))
	if !q.End.IsZero() {
		if q.End.Before(q.Start) {
			return nil, fmt.Errorf("%w: end time is before start time", ErrInvalidInput)
		}
		v.Set("end_time", formatTime(q.End))
	}
	if u := strings.TrimSpace(q.ICSURL); u != "" {
		if err := ValidateICSURL(u); err != nil {
			return nil, err
		}
		v.Set("ics_url", u)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Events fetches events matching q.
func (c *Client) Events(ctx context.Context, q Query) ([]model.RawEvent, error) {
	vals, err := q.Values()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+eventsPath+"?"+vals.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	appLog.Info("api events request",
		"start_time", vals.Get("start_time"),
		"end_time", vals.Get("end_time"),
		"ics_url", RedactURL(q.ICSURL),
	)
	return c.do(req)
}

// UploadICS posts an ICS file to the API and returns the events it
// contains. The file name is validated before any network call.
func (c *Client) UploadICS(ctx context.Context, fileName string, r io.Reader) ([]model.RawEvent, error) {
	if err := ValidateICSFileName(fileName); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: no file content", ErrInvalidInput)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("%w: build upload: %v", ErrTransport, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: build upload: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	appLog.Info("api upload request", "file", fileName, "bytes", body.Len())
	return c.do(req)
}

// eventsEnvelope keeps records raw so one malformed record does not sink
// the whole response.
type eventsEnvelope struct {
	Events *[]json.RawMessage `json:"events"`
}

func (c *Client) do(req *http.Request) ([]model.RawEvent, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body so the message carries the API's reason.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(snippet))}
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: expected JSON, got %q", ErrResponseShape, resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var env eventsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseShape, err)
	}
	if env.Events == nil {
		return nil, fmt.Errorf("%w: missing events array", ErrResponseShape)
	}

	events := make([]model.RawEvent, 0, len(*env.Events))
	skipped := 0
	for _, raw := range *env.Events {
		var ev model.RawEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if skipped > 0 {
		appLog.Debug("api skipped undecodable records", "skipped", skipped)
	}

	appLog.Info("api response", "status", resp.StatusCode, "events", len(events))
	return events, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// StatusError reports a non-2xx reply. It matches ErrTransport.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("events api returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("events api returned %s", e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

// IsTransport reports whether err is a network or status failure.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }
