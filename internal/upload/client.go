package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/zombor/ecoscan/internal/acquire"
	"github.com/zombor/ecoscan/internal/scan"
)

const (
	uploadPath = "/upload"
	fileField  = "file"
)

// Credentials are the fixed basic auth pair sent with every upload
type Credentials struct {
	Username string
	Password string
}

// Uploader sends one image to the classification service
type Uploader interface {
	Upload(ctx context.Context, img acquire.Image) (*scan.Response, error)
}

// Client posts images to the classification service
type Client struct {
	baseURL     string
	credentials Credentials
	httpClient  *http.Client
}

// NewClient creates a Client for the service rooted at baseURL. No timeout is
// set; the caller's context bounds the request.
func NewClient(baseURL string, credentials Credentials) *Client {
	return NewClientWithHTTP(baseURL, credentials, &http.Client{})
}

// NewClientWithHTTP creates a Client with a custom http.Client for testing
func NewClientWithHTTP(baseURL string, credentials Credentials, httpClient *http.Client) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		credentials: credentials,
		httpClient:  httpClient,
	}
}

// Upload performs exactly one round trip. A response whose image status is
// "invalid" is returned as a normal success; interpreting it is up to the caller.
func (c *Client) Upload(ctx context.Context, img acquire.Image) (*scan.Response, error) {
	body, contentType, err := encodeImage(img)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + uploadPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.credentials.Username, c.credentials.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Upload request failed", "url", url, "error", err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Upload rejected by service",
			"url", url,
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(detail)),
		)
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	result, err := scan.Decode(resp.Body)
	if err != nil {
		return nil, err
	}

	slog.Info("Image classified",
		"filename", img.Filename,
		"model", result.ModelUsed,
		"image_status", result.ImageStatus,
	)
	return result, nil
}

// encodeImage builds the multipart body with a single "file" part
func encodeImage(img acquire.Image) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, escapeQuotes(img.Filename)))
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("writing form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
