package rdio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// UploadPath is the ingestion endpoint under the configured base URL
const UploadPath = "/api/call-upload"

const audioType = "audio/x-wav"

// Client uploads call recordings to Rdio Scanner
type Client struct {
	config     Config
	uploadURL  string
	httpClient *http.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains upload client configuration
type Config struct {
	Endpoint string // base URL
	APIKey   string
	Timeout  time.Duration
}

// Call is one finished recording plus the metadata Rdio Scanner indexes it by.
// Either Audio or AudioPath must be set; AudioPath is read at delivery time.
type Call struct {
	Audio       []byte
	AudioPath   string
	AudioName   string
	DateTime    time.Time
	Talkgroup   string
	Source      string
	SystemID    string
	SystemLabel string
}

// StatusError is returned when the API answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new upload client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		uploadURL:  strings.TrimRight(config.Endpoint, "/") + UploadPath,
		httpClient: httpClient,
	}, nil
}

// UploadURL returns the full call-upload URL
func (c *Client) UploadURL() string {
	return c.uploadURL
}

// Deliver uploads a single call. Any transport error, local read error or
// non-2xx response is returned; nothing is retried here.
func (c *Client) Deliver(ctx context.Context, call *Call) error {
	startTime := time.Now()
	c.incrementTotalRequests()

	err := c.doRequest(ctx, call)
	c.updateAvgResponseTime(time.Since(startTime))
	if err != nil {
		c.incrementFailedRequests()
		return err
	}

	c.incrementSuccessRequests()
	return nil
}

// doRequest performs a single HTTP request to the upload API
func (c *Client) doRequest(ctx context.Context, call *Call) error {
	body, contentType, err := c.createMultipartRequest(call)
	if err != nil {
		return fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", "WhackerLink-Rdio-Bridge/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return nil
}

// createMultipartRequest creates the multipart/form-data request body
func (c *Client) createMultipartRequest(call *Call) (io.Reader, string, error) {
	audio := call.Audio
	if audio == nil {
		if call.AudioPath == "" {
			return nil, "", fmt.Errorf("call has no audio")
		}
		data, err := os.ReadFile(call.AudioPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read audio file: %w", err)
		}
		audio = data
	}

	name := call.AudioName
	if name == "" && call.AudioPath != "" {
		name = filepath.Base(call.AudioPath)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="audio"; filename="%s"`, escapeQuotes(name)))
	partHeader.Set("Content-Type", audioType)

	fileWriter, err := writer.CreatePart(partHeader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	// Field order follows the upstream uploader
	fields := []struct {
		key   string
		value string
	}{
		{"audioName", name},
		{"audioType", audioType},
		{"dateTime", call.DateTime.UTC().Format(time.RFC3339)},
		{"key", c.config.APIKey},
		{"talkgroup", call.Talkgroup},
		{"source", call.Source},
		{"system", call.SystemID},
		{"systemLabel", call.SystemLabel},
	}

	for _, f := range fields {
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
