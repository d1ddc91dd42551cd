package origin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"scorm-bridge/internal/httpx"
)

const apiKeyHeader = "X-Api-Key"

// ErrExportRejected means Origin refused the export request (bad course id
// or an export already in progress). Not retryable.
var ErrExportRejected = errors.New("origin: export request rejected")

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	// Export holds the fixed fields sent with every export request.
	Export ExportOptions
}

type ExportOptions struct {
	ClientID    string
	Type        string
	Format      string
	Navigation  string
	WebhookVerb string
}

func New(baseURL, apiKey string) *Client {
	tr := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: tr,
		},
		Export: ExportOptions{
			ClientID:    "001",
			Type:        "light",
			Format:      "scorm2004",
			Navigation:  "free",
			WebhookVerb: "POST",
		},
	}
}

/* -------- Catalog -------- */

type Course struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
	Code             string `json:"code"`
	Duration         int    `json:"duration"` // minutes
	Image            string `json:"image"`
	Banner           string `json:"banner"`
	Tags             []Tag  `json:"tags"`
}

type Tag struct {
	Name string `json:"name"`
}

type catalogResponse struct {
	Status  string   `json:"status"`
	Courses []Course `json:"courses"`
}

// ListCourses fetches the full catalog in one shot. The listing is not
// restartable mid-stream; callers re-fetch on failure.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	var out catalogResponse
	err := httpx.DoJSON(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/catalog/list", nil)
			if err != nil {
				return nil, err
			}
			r.Header.Set("Accept", "application/json")
			r.Header.Set(apiKeyHeader, c.APIKey)
			return r, nil
		},
		&out,
		httpx.DefaultRetryConfig(),
	)
	if err != nil {
		return nil, fmt.Errorf("origin: list courses failed: %w", err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("origin: list courses: unexpected status %q", out.Status)
	}
	return out.Courses, nil
}

/* -------- Export -------- */

type exportRequest struct {
	ID          int    `json:"id"`
	ClientID    string `json:"client_id"`
	Type        string `json:"type"`
	Format      string `json:"format"`
	Navigation  string `json:"navigation"`
	WebhookURL  string `json:"webhook_url"`
	WebhookVerb string `json:"webhook_verb"`
}

type exportResponse struct {
	Accepted bool `json:"accepted"`
}

// RequestScormExport asks Origin to start an asynchronous SCORM export and
// deliver the result to callbackURL. It returns once the job is accepted;
// the package itself arrives later via the webhook, correlated by course id
// in the callback payload, not by the URL shape.
func (c *Client) RequestScormExport(ctx context.Context, courseID, callbackURL string) error {
	id, err := strconv.Atoi(courseID)
	if err != nil {
		return fmt.Errorf("%w: non-numeric course id %q", ErrExportRejected, courseID)
	}

	b, err := json.Marshal(exportRequest{
		ID:          id,
		ClientID:    c.Export.ClientID,
		Type:        c.Export.Type,
		Format:      c.Export.Format,
		Navigation:  c.Export.Navigation,
		WebhookURL:  callbackURL,
		WebhookVerb: c.Export.WebhookVerb,
	})
	if err != nil {
		return err
	}

	var out exportResponse
	err = httpx.DoJSON(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/catalog/request-by-id", bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Content-Type", "application/json")
			r.Header.Set("Accept", "application/json")
			r.Header.Set(apiKeyHeader, c.APIKey)
			return r, nil
		},
		&out,
		httpx.DefaultRetryConfig(),
	)
	if err != nil {
		var herr *httpx.HTTPError
		if errors.As(err, &herr) && herr.Permanent() {
			return fmt.Errorf("%w: %v", ErrExportRejected, err)
		}
		return fmt.Errorf("origin: export request failed: %w", err)
	}
	if !out.Accepted {
		return fmt.Errorf("%w: course id %s", ErrExportRejected, courseID)
	}
	return nil
}

/* -------- Content download -------- */

// FetchContent downloads course artwork (image/banner) from a catalog URL
// and derives a filename from the URL path.
func (c *Client) FetchContent(ctx context.Context, rawURL string) ([]byte, string, error) {
	body, err := httpx.DoWithRetry(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		},
		httpx.RetryConfig{MaxAttempts: 3},
	)
	if err != nil {
		return nil, "", fmt.Errorf("origin: download %s: %w", rawURL, err)
	}
	return body, filenameFromURL(rawURL), nil
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "downloaded_file"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "downloaded_file"
	}
	return name
}
