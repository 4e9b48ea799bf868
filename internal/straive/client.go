// Package straive wraps the Straive LLM foundry gateway: chat completion,
// image generation/edit, vision metadata extraction, and CAD code generation.
// Every method degrades gracefully when no API key is configured.
package straive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"pack-design-backend/internal/config"
	"pack-design-backend/internal/imaging"
	"pack-design-backend/internal/logger"
	"pack-design-backend/internal/models"
)

const imageModel = "gpt-image-1"

// Client talks to the Straive gateway. A per-request API key override (from
// the X-Straive-Api-Key header) takes precedence over the configured key.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		log:        log,
	}
}

// ImageResult is one generated or edited image.
type ImageResult struct {
	ImageID          string
	ImageURLOrBase64 string
}

func (c *Client) apiKey(override string) string {
	if override != "" {
		return override
	}
	return c.cfg.StraiveAPIKey
}

// Configured reports whether any usable API key is available for a request.
func (c *Client) Configured(override string) bool {
	return c.apiKey(override) != ""
}

// RetryWithBackoff retries fn up to three times with increasing delays.
// Used for transient gateway failures on heavyweight calls.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	backoffs := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	var err error
	for attempt := 0; attempt < len(backoffs); attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffs[attempt]):
		}
	}
	return err
}

func (c *Client) postJSON(ctx context.Context, url string, payload interface{}, apiKey string, timeout time.Duration) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read provider response: %w", err)
	}
	return data, resp.StatusCode, nil
}

type chatPayload struct {
	Model          string        `json:"model"`
	Messages       []interface{} `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat interface{}   `json:"response_format,omitempty"`
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func extractChatText(data []byte) string {
	var parsed chatCompletion
	if err := json.Unmarshal(data, &parsed); err != nil || len(parsed.Choices) == 0 {
		return ""
	}
	raw := parsed.Choices[0].Message.Content
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	// Some gateways return content as a parts array.
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		chunks := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Text != "" {
				chunks = append(chunks, p.Text)
			}
		}
		return strings.TrimSpace(strings.Join(chunks, "\n"))
	}
	return ""
}

// Chat sends a polish/chat completion. Returns "" when no key is configured
// so callers keep the deterministic text.
func (c *Client) Chat(ctx context.Context, systemPrompt string, history []models.ChatMessage, userMessage, apiKeyOverride string) (string, error) {
	key := c.apiKey(apiKeyOverride)
	if key == "" {
		return "", nil
	}
	messages := []interface{}{map[string]string{"role": "system", "content": systemPrompt}}
	for _, m := range history {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userMessage})

	data, status, err := c.postJSON(ctx, c.cfg.ChatURL, chatPayload{
		Model:       c.cfg.ModelName,
		Messages:    messages,
		Temperature: 0.2,
	}, key, 45*time.Second)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("chat completion: status %d: %s", status, truncate(string(data), 500))
	}
	return extractChatText(data), nil
}

// CadCodegen asks the chat model for a CadQuery script, optionally attaching
// a reference image of the approved design.
func (c *Client) CadCodegen(ctx context.Context, systemPrompt, userMessage string, imageBytes []byte, imageMime, apiKeyOverride string) (string, error) {
	key := c.apiKey(apiKeyOverride)
	if key == "" {
		return "", nil
	}

	var userContent interface{} = userMessage
	if len(imageBytes) > 0 {
		mime := imageMime
		if mime == "" {
			mime = "image/png"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(imageBytes))
		userContent = []interface{}{
			map[string]interface{}{"type": "text", "text": userMessage},
			map[string]interface{}{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
		}
	}

	data, status, err := c.postJSON(ctx, c.cfg.CadCodegenURL, chatPayload{
		Model: c.cfg.ModelName,
		Messages: []interface{}{
			map[string]interface{}{"role": "system", "content": systemPrompt},
			map[string]interface{}{"role": "user", "content": userContent},
		},
		Temperature: 0.2,
	}, key, 90*time.Second)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("cad codegen: status %d: %s", status, truncate(string(data), 500))
	}
	return extractChatText(data), nil
}

type imageAPIResponse struct {
	Data []struct {
		ID      string `json:"id"`
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// ImageGenerate requests a 1024x1024 concept image. Without a key it returns
// a deterministic SVG placeholder so the workflow stays usable offline.
func (c *Client) ImageGenerate(ctx context.Context, prompt, apiKeyOverride string) (ImageResult, error) {
	key := c.apiKey(apiKeyOverride)
	if key == "" {
		return fallbackImage(prompt), nil
	}

	payload := map[string]interface{}{
		"model":           imageModel,
		"prompt":          prompt,
		"size":            "1024x1024",
		"response_format": "b64_json",
	}
	var data []byte
	var status int
	err := RetryWithBackoff(ctx, func() error {
		var callErr error
		data, status, callErr = c.postJSON(ctx, c.cfg.ImageGenerateURL, payload, key, 60*time.Second)
		return callErr
	})
	if err != nil {
		return ImageResult{}, err
	}
	if status >= 400 {
		// Some gateways reject response_format on the images API.
		c.log.Warn("image generate retrying without response_format", "status", status)
		delete(payload, "response_format")
		data, status, err = c.postJSON(ctx, c.cfg.ImageGenerateURL, payload, key, 60*time.Second)
		if err != nil {
			return ImageResult{}, err
		}
	}
	if status >= 400 {
		return ImageResult{}, fmt.Errorf("image generate: status %d: %s", status, truncate(string(data), 500))
	}
	return c.imageResultFrom(ctx, data, key, "generated-image")
}

func (c *Client) imageResultFrom(ctx context.Context, data []byte, key, defaultID string) (ImageResult, error) {
	var parsed imageAPIResponse
	if err := json.Unmarshal(data, &parsed); err != nil || len(parsed.Data) == 0 {
		return ImageResult{}, fmt.Errorf("image response: no data items")
	}
	item := parsed.Data[0]
	img := item.B64JSON
	if img == "" {
		img = item.URL
	}
	if strings.HasPrefix(img, "http") {
		fetched, err := c.urlToBase64(ctx, img, key)
		if err != nil {
			return ImageResult{}, err
		}
		img = fetched
	}
	id := item.ID
	if id == "" {
		id = defaultID
	}
	return ImageResult{ImageID: id, ImageURLOrBase64: img}, nil
}

func (c *Client) urlToBase64(ctx context.Context, url, key string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build image fetch: %w", err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch generated image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch generated image: status %d", resp.StatusCode)
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generated image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// ImageEdit applies an instruction to an existing image. Gateways disagree on
// the edits API shape, so three strategies are attempted in order: plain
// multipart, multipart with response_format, then a JSON body; each across
// the configured URL and its /openai/-stripped variant.
func (c *Client) ImageEdit(ctx context.Context, imageRef, instruction, apiKeyOverride string) (ImageResult, error) {
	key := c.apiKey(apiKeyOverride)
	if key == "" {
		return fallbackImage(imageRef + ": " + instruction), nil
	}

	blob, mime, err := imaging.ResolveBytes(ctx, imageRef, key)
	if err != nil {
		return ImageResult{}, err
	}
	filename := "edit_input" + imaging.ExtForMime(mime)

	urls := []string{c.cfg.ImageEditURL}
	if strings.Contains(c.cfg.ImageEditURL, "/openai/") {
		urls = append(urls, strings.Replace(c.cfg.ImageEditURL, "/openai/", "/", 1))
	}

	var errs []string
	for _, fields := range []map[string]string{
		{"model": imageModel, "prompt": instruction},
		{"model": imageModel, "prompt": instruction, "response_format": "b64_json"},
	} {
		for _, url := range urls {
			data, err := c.postImageEditMultipart(ctx, url, fields, blob, mime, filename, key)
			if err == nil {
				return c.imageResultFrom(ctx, data, key, "edited-image")
			}
			errs = append(errs, fmt.Sprintf("multipart@%s: %v", url, err))
		}
	}

	dataURLRef := imageRef
	if !strings.HasPrefix(imageRef, "data:image") {
		dataURLRef = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(blob))
	}
	for _, url := range urls {
		payload := map[string]string{"model": imageModel, "image": dataURLRef, "prompt": instruction}
		data, status, err := c.postJSON(ctx, url, payload, key, 90*time.Second)
		if err == nil && status < 400 {
			return c.imageResultFrom(ctx, data, key, "edited-image")
		}
		if err == nil {
			err = fmt.Errorf("status %d", status)
		}
		errs = append(errs, fmt.Sprintf("json@%s: %v", url, err))
	}

	if len(errs) > 3 {
		errs = errs[:3]
	}
	return ImageResult{}, fmt.Errorf("all edit strategies failed: %s", strings.Join(errs, " | "))
}

func (c *Client) postImageEditMultipart(ctx context.Context, url string, fields map[string]string, blob []byte, mime, filename, key string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write multipart field: %w", err)
		}
	}
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename)}
	header["Content-Type"] = []string{mime}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart image part: %w", err)
	}
	if _, err := part.Write(blob); err != nil {
		return nil, fmt.Errorf("write multipart image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build edit request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edit request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read edit response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 300))
	}
	return data, nil
}

func fallbackImage(label string) ImageResult {
	if len(label) > 60 {
		label = label[:60]
	}
	svg := fmt.Sprintf(`<svg xmlns='http://www.w3.org/2000/svg' width='1024' height='1024'>
<rect width='100%%' height='100%%' fill='white'/>
<rect x='120' y='100' width='784' height='824' rx='24' fill='#f7f7f7' stroke='#F57C00' stroke-width='8'/>
<text x='512' y='460' text-anchor='middle' fill='#444' font-size='40' font-family='Arial'>Preview Placeholder</text>
<text x='512' y='520' text-anchor='middle' fill='#666' font-size='26' font-family='Arial'>%s</text>
</svg>`, label)
	return ImageResult{
		ImageID:          "fallback-image",
		ImageURLOrBase64: "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)),
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
