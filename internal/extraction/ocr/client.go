// Package ocr talks to the document-extraction vendor. The vendor may answer
// a submission inline with predictions, or later through a webhook; callers
// handle both.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/taxdesk/taxdesk/internal/shared"
)

// Prediction is one labeled field the vendor read off a page.
type Prediction struct {
	ID      string  `json:"id,omitempty"`
	Label   string  `json:"label"`
	Score   float64 `json:"score,omitempty"`
	OcrText string  `json:"ocr_text"`
}

// SubmitResult is one file's entry in a vendor response.
type SubmitResult struct {
	RequestFileID string       `json:"request_file_id"`
	Input         string       `json:"input,omitempty"`
	Message       string       `json:"message,omitempty"`
	Status        string       `json:"status,omitempty"`
	Page          int          `json:"page,omitempty"`
	Predictions   []Prediction `json:"prediction,omitempty"`
}

// SubmitResponse is the vendor's answer to a label-file submission.
type SubmitResponse struct {
	Message string         `json:"message,omitempty"`
	Results []SubmitResult `json:"result,omitempty"`
}

// Client submits document bytes for extraction.
type Client interface {
	Submit(ctx context.Context, file io.Reader, filename string, documentID, orderID uuid.UUID) (*SubmitResponse, error)
	// Async reports whether submissions finish through the webhook rather
	// than inline in the submit response.
	Async() bool
}

// Config holds vendor connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	ModelID    string
	WebhookURL string
	Timeout    time.Duration
}

// HTTPClient is the production Client. A circuit breaker shields the service
// from hammering a vendor that is already down; a tripped breaker surfaces as
// the same upstream failure as a vendor error.
type HTTPClient struct {
	cfg     Config
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker[*SubmitResponse]
	logger  *slog.Logger
}

func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[*SubmitResponse](gobreaker.Settings{
		Name:    "ocr-vendor",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPClient{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

func (c *HTTPClient) Async() bool {
	return c.cfg.WebhookURL != ""
}

func (c *HTTPClient) Submit(ctx context.Context, file io.Reader, filename string, documentID, orderID uuid.UUID) (*SubmitResponse, error) {
	if c.cfg.ModelID == "" {
		return nil, fmt.Errorf("%w: ocr model id not configured", shared.ErrUpstream)
	}

	body, contentType, err := c.buildBody(file, filename, documentID, orderID)
	if err != nil {
		return nil, err
	}

	resp, err := c.breaker.Execute(func() (*SubmitResponse, error) {
		return c.post(ctx, body, contentType)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}
	return resp, nil
}

func (c *HTTPClient) buildBody(file io.Reader, filename string, documentID, orderID uuid.UUID) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("ocr: build multipart: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("ocr: copy file: %w", err)
	}

	metadata, err := json.Marshal(map[string]string{
		"document_id": documentID.String(),
		"order_id":    orderID.String(),
	})
	if err != nil {
		return nil, "", fmt.Errorf("ocr: encode metadata: %w", err)
	}
	if err := mw.WriteField("request_metadata", string(metadata)); err != nil {
		return nil, "", fmt.Errorf("ocr: write metadata: %w", err)
	}

	if c.cfg.WebhookURL != "" {
		if err := mw.WriteField("async", "true"); err != nil {
			return nil, "", fmt.Errorf("ocr: write async flag: %w", err)
		}
		if err := mw.WriteField("webhook_url", c.cfg.WebhookURL); err != nil {
			return nil, "", fmt.Errorf("ocr: write webhook url: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("ocr: finish multipart: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

func (c *HTTPClient) post(ctx context.Context, body *bytes.Buffer, contentType string) (*SubmitResponse, error) {
	url := fmt.Sprintf("%s/OCR/Model/%s/LabelFile", c.cfg.BaseURL, c.cfg.ModelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth(c.cfg.APIKey, "")

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vendor request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("vendor returned %d: %s", httpResp.StatusCode, snippet)
	}

	var resp SubmitResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode vendor response: %w", err)
	}
	return &resp, nil
}
