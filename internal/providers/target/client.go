package target

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"scorm-bridge/internal/domain"
	"scorm-bridge/internal/httpx"
)

// Client talks to the Target LMS. Tokens are fetched lazily via the OAuth
// client-credentials flow and refreshed shortly before expiry.
type Client struct {
	BaseURL       string
	PublicKey     string
	PrivateKey    string
	CreatorUserID int
	Language      string
	HTTP          *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(baseURL, publicKey, privateKey string, creatorUserID int) *Client {
	tr := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		BaseURL:       baseURL,
		PublicKey:     publicKey,
		PrivateKey:    privateKey,
		CreatorUserID: creatorUserID,
		Language:      "en-US",
		HTTP: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: tr,
		},
	}
}

/* -------- Auth -------- */

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// ensureToken returns a valid bearer token, requesting a new one when the
// cached token is missing or within a minute of expiring.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.PublicKey + ":" + c.PrivateKey))
	form := url.Values{"grant_type": {"client_credentials"}}

	var out tokenResponse
	err := httpx.DoJSON(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Authorization", "Basic "+basic)
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			r.Header.Set("Accept", "application/json")
			return r, nil
		},
		&out,
		httpx.DefaultRetryConfig(),
	)
	if err != nil {
		return "", fmt.Errorf("target: auth failed: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("target: auth: token not found in response")
	}

	c.token = out.AccessToken
	// refresh a minute early to avoid using a token at the expiry edge
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return c.token, nil
}

/* -------- Hierarchy creation -------- */

type courseCreateRequest struct {
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	IDUser      int      `json:"iduser"`
	Language    string   `json:"language"`
	Description string   `json:"description"`
	Objective   string   `json:"objective"`
	Reference   string   `json:"reference"`
	EduDuration int      `json:"eduduration"`
	State       string   `json:"state"`
	Visible     bool     `json:"visible"`
	Keywords    []string `json:"keywords"`
}

type moduleCreateRequest struct {
	IDTraining  int    `json:"idtraining"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Reference   string `json:"reference"`
	Position    int    `json:"position"`
	EduDuration int    `json:"eduduration"`
}

type stepCreateRequest struct {
	IDModule  int    `json:"idmodule"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Position  int    `json:"position"`
}

type createResponse struct {
	ID int64 `json:"id"`
}

func (c *Client) CreateCourse(ctx context.Context, course domain.Course) (string, error) {
	keywords := course.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	language := course.Language
	if language == "" {
		language = c.Language
	}
	out, err := c.postJSON(ctx, "/courses", courseCreateRequest{
		Title:       course.Title,
		Type:        "internal",
		IDUser:      c.CreatorUserID,
		Language:    language,
		Description: course.Description,
		Objective:   course.Objective,
		Reference:   course.Reference,
		EduDuration: course.DurationMinutes,
		State:       "validated",
		Visible:     true,
		Keywords:    keywords,
	})
	if err != nil {
		return "", fmt.Errorf("target: create course: %w", err)
	}
	return strconv.FormatInt(out.ID, 10), nil
}

func (c *Client) CreateModule(ctx context.Context, targetCourseID string, course domain.Course) (string, error) {
	courseID, err := strconv.Atoi(targetCourseID)
	if err != nil {
		return "", fmt.Errorf("target: create module: bad course id %q: %w", targetCourseID, err)
	}
	out, err := c.postJSON(ctx, "/modules", moduleCreateRequest{
		IDTraining:  courseID,
		Title:       "Module 1",
		Type:        "online",
		Reference:   course.Reference + "_M1",
		Position:    1,
		EduDuration: course.DurationMinutes,
	})
	if err != nil {
		return "", fmt.Errorf("target: create module: %w", err)
	}
	return strconv.FormatInt(out.ID, 10), nil
}

func (c *Client) CreateScormStep(ctx context.Context, targetModuleID string, course domain.Course) (string, error) {
	moduleID, err := strconv.Atoi(targetModuleID)
	if err != nil {
		return "", fmt.Errorf("target: create step: bad module id %q: %w", targetModuleID, err)
	}
	out, err := c.postJSON(ctx, "/steps", stepCreateRequest{
		IDModule:  moduleID,
		Title:     "Content",
		Type:      "scorm",
		Reference: course.Reference + "_M1_S1",
		Position:  1,
	})
	if err != nil {
		return "", fmt.Errorf("target: create step: %w", err)
	}
	return strconv.FormatInt(out.ID, 10), nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (createResponse, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return createResponse{}, err
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return createResponse{}, err
	}

	var out createResponse
	err = httpx.DoJSON(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Authorization", "Bearer "+token)
			r.Header.Set("Content-Type", "application/json")
			r.Header.Set("Accept", "application/json")
			return r, nil
		},
		&out,
		httpx.DefaultRetryConfig(),
	)
	if err != nil {
		return createResponse{}, err
	}
	if out.ID == 0 {
		return createResponse{}, fmt.Errorf("target: no id in response from %s", endpoint)
	}
	return out, nil
}

/* -------- Uploads -------- */

// UploadScormPackage uploads package bytes into the step. Target overwrites
// the step content on re-upload, which is what makes redelivered callbacks
// safe to retry.
func (c *Client) UploadScormPackage(ctx context.Context, targetStepID string, pkg []byte, filename string) error {
	if err := c.uploadFile(ctx, "/steps/content/"+targetStepID, pkg, filename); err != nil {
		return fmt.Errorf("target: upload scorm package to step %s: %w", targetStepID, err)
	}
	return nil
}

func (c *Client) UploadCourseImage(ctx context.Context, targetCourseID string, content []byte, filename string) error {
	if err := c.uploadFile(ctx, "/courses/image/"+targetCourseID, content, filename); err != nil {
		return fmt.Errorf("target: upload course image: %w", err)
	}
	return nil
}

func (c *Client) UploadCourseBanner(ctx context.Context, targetCourseID string, content []byte, filename string) error {
	if err := c.uploadFile(ctx, "/courses/banner/"+targetCourseID, content, filename); err != nil {
		return fmt.Errorf("target: upload course banner: %w", err)
	}
	return nil
}

func (c *Client) uploadFile(ctx context.Context, endpoint string, content []byte, filename string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	raw := body.Bytes()

	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	_, err = httpx.DoWithRetry(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(raw))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Authorization", "Bearer "+token)
			r.Header.Set("Content-Type", w.FormDataContentType())
			r.Header.Set("Accept", "application/json")
			return r, nil
		},
		httpx.DefaultRetryConfig(),
	)
	return err
}
