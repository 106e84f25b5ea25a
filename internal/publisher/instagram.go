package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultInstagramBaseURL = "https://i.instagram.com/api/v1"

// InstagramPublisher posts photos to Instagram with a password session.
type InstagramPublisher struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	sessionID  string
}

// InstagramConfig holds configuration for the Instagram publisher.
type InstagramConfig struct {
	Username string
	Password string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
}

// NewInstagramPublisher creates a new Instagram publisher.
func NewInstagramPublisher(cfg InstagramConfig) *InstagramPublisher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultInstagramBaseURL
	}
	return &InstagramPublisher{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  baseURL,
		username: cfg.Username,
		password: cfg.Password,
	}
}

// Platform returns the platform name.
func (p *InstagramPublisher) Platform() string {
	return "instagram"
}

// loginResponse is the response from session creation.
type loginResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// ValidateCredentials authenticates and validates the credentials.
func (p *InstagramPublisher) ValidateCredentials(ctx context.Context) error {
	return p.authenticate(ctx)
}

func (p *InstagramPublisher) authenticate(ctx context.Context) error {
	if p.sessionID != "" {
		return nil // Already authenticated
	}

	form := url.Values{}
	form.Set("username", p.username)
	form.Set("password", p.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/accounts/login/", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &PublishError{Kind: KindTransientNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &PublishError{Kind: KindTransientNetwork, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return &PublishError{
			Kind:       KindAuthExpired,
			StatusCode: resp.StatusCode,
			Message:    "login rejected: " + string(respBody),
		}
	}

	var session loginResponse
	if err := json.Unmarshal(respBody, &session); err != nil {
		return &PublishError{Kind: KindUnknown, Message: "parse login response: " + err.Error()}
	}
	if session.SessionID == "" {
		return &PublishError{Kind: KindAuthExpired, Message: "login returned no session"}
	}

	p.sessionID = session.SessionID
	slog.Debug("authenticated with Instagram", "username", p.username)
	return nil
}

// refresh drops the current session and logs in again.
func (p *InstagramPublisher) refresh(ctx context.Context) error {
	p.sessionID = ""
	return p.authenticate(ctx)
}

// uploadResponse is the response from a photo upload.
type uploadResponse struct {
	Status string `json:"status"`
	Media  struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	} `json:"media"`
}

// Publish uploads the image to Instagram. An expired session is refreshed
// once and the upload retried within the same attempt.
func (p *InstagramPublisher) Publish(ctx context.Context, image []byte, caption string) (*Outcome, error) {
	if err := p.authenticate(ctx); err != nil {
		return nil, err
	}

	outcome, err := p.upload(ctx, image, caption)
	if err == nil {
		return outcome, nil
	}

	var pubErr *PublishError
	if !errors.As(err, &pubErr) || pubErr.Kind != KindAuthExpired {
		return nil, err
	}

	// Session expired mid-flight: refresh once, then one more upload
	slog.Debug("session expired, refreshing", "username", p.username)
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}
	return p.upload(ctx, image, caption)
}

func (p *InstagramPublisher) upload(ctx context.Context, image []byte, caption string) (*Outcome, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("photo", "post.jpg")
	if err != nil {
		return nil, fmt.Errorf("create multipart: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := mw.WriteField("caption", caption); err != nil {
		return nil, fmt.Errorf("write caption: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/media/photo/", &body)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.sessionID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &PublishError{Kind: KindTransientNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &PublishError{Kind: KindTransientNetwork, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, resp.Header.Get("Retry-After"), string(respBody))
	}

	var upload uploadResponse
	if err := json.Unmarshal(respBody, &upload); err != nil {
		return nil, &PublishError{Kind: KindUnknown, Message: "parse upload response: " + err.Error()}
	}

	postURL := ""
	if upload.Media.Code != "" {
		postURL = "https://www.instagram.com/p/" + upload.Media.Code + "/"
	}

	slog.Info("posted to Instagram", "media_id", upload.Media.ID, "url", postURL)

	return &Outcome{
		PostID:  upload.Media.ID,
		PostURL: postURL,
	}, nil
}

// classifyStatus maps an HTTP status to the platform error taxonomy.
func classifyStatus(status int, retryAfter, message string) *PublishError {
	e := &PublishError{StatusCode: status, Message: message}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthExpired
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(retryAfter)
	case status == http.StatusBadRequest || status == http.StatusForbidden ||
		status == http.StatusUnprocessableEntity:
		// Malformed media or policy violation: retrying won't help
		e.Kind = KindPermanentRejected
	case status >= 500 || status == http.StatusRequestTimeout:
		e.Kind = KindTransientNetwork
	default:
		e.Kind = KindUnknown
	}
	return e
}

// parseRetryAfter reads a Retry-After header in either the delta-seconds or
// the HTTP-date form.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
