package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/photo-booth/internal/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultRequestTimeout bounds a single generation round-trip.
const DefaultRequestTimeout = 120 * time.Second

// HTTPClient calls the booth backend's REST endpoints:
//
//	POST /api/generate  JSON body, text-only generation
//	POST /api/stylize   multipart form with an "image" file part
//
// Both reply with {"images": [{"image_base64": "..."}]}.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the backend at baseURL. A zero timeout
// uses DefaultRequestTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type errorBody struct {
	Detail any `json:"detail"`
}

// Health checks GET /api/health.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyError("health", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return classifyStatus("health", resp.StatusCode, truncateString(string(body), 200))
	}
	return nil
}

// Generate implements Service.
func (c *HTTPClient) Generate(ctx context.Context, req GenerateRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = DefaultImageModel
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	log.Debug().
		Str("prompt", truncateString(req.Prompt, 100)).
		Int("images", req.NumberOfImages).
		Str("aspect_ratio", req.AspectRatio).
		Str("size", req.SampleImageSize).
		Msg("Generate: calling backend")

	return c.post(ctx, "generate", "/api/generate", "application/json", body)
}

// Stylize implements Service.
func (c *HTTPClient) Stylize(ctx context.Context, req StylizeRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = DefaultImageModel
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"prompt", req.Prompt},
		{"number_of_images", strconv.Itoa(req.NumberOfImages)},
		{"aspect_ratio", req.AspectRatio},
		{"sample_image_size", req.SampleImageSize},
		{"person_generation", req.PersonGeneration},
		{"model", req.Model},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", f.name, err)
		}
	}

	mime := req.mimeType()
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, uploadName(mime)))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, fmt.Errorf("failed to write image part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	log.Debug().
		Str("prompt", truncateString(req.Prompt, 100)).
		Str("mime_type", mime).
		Int("image_bytes", len(req.Image)).
		Msg("Stylize: calling backend")

	return c.post(ctx, "stylize", "/api/stylize", w.FormDataContentType(), buf.Bytes())
}

func (c *HTTPClient) post(ctx context.Context, op, path, contentType string, body []byte) (resp *Response, err error) {
	start := time.Now()
	defer func() { recordCall("http", op, start, err) }()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyError(op, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classifyError(op, fmt.Errorf("failed to read response: %w", err))
	}

	log.Debug().
		Str("operation", op).
		Int("status_code", httpResp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Backend call completed")

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyStatus(op, httpResp.StatusCode, errorDetail(respBody))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &Error{Type: ErrTypeMalformed, Operation: op, Message: "failed to parse response", Err: err}
	}
	if len(out.Images) == 0 {
		return nil, emptyResult(op)
	}
	return &out, nil
}

// errorDetail extracts FastAPI-style {"detail": ...} bodies, falling back to
// the raw text.
func errorDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != nil {
		if s, ok := eb.Detail.(string); ok {
			return truncateString(s, 200)
		}
		if b, err := json.Marshal(eb.Detail); err == nil {
			return truncateString(string(b), 200)
		}
	}
	return truncateString(string(body), 200)
}

func uploadName(mime string) string {
	switch mime {
	case "image/jpeg":
		return "photo.jpg"
	case "image/webp":
		return "photo.webp"
	case "image/gif":
		return "photo.gif"
	default:
		return "photo.png"
	}
}

func recordCall(backend, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = TypeOf(err).String()
	}
	metrics.New(metrics.Namespace).
		Dimension("Backend", backend).
		Dimension("Operation", op).
		Dimension("Result", result).
		Since("GenerationLatencyMs", start).
		Count("GenerationRequests").
		Flush()
}
