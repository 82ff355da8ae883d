package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/AnTengye/contractdash/backend/config"
	"github.com/AnTengye/contractdash/backend/model"
	"github.com/AnTengye/contractdash/backend/pkg/logger"
)

// ErrAPIKeyMissing is returned before any request is made when the
// configuration carries no API key.
var ErrAPIKeyMissing = errors.New("OpenAI API key not configured")

const defaultFailureMessage = "Analysis failed"

// APIError is a non-2xx response from the analysis API. Its message is the
// response's "detail" field, or the raw body when that is not JSON.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Upload is a document to analyze. ContentType is sniffed when empty.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// DetectedContentType returns ContentType, or the type detected from Content.
func (u Upload) DetectedContentType() string {
	if u.ContentType != "" {
		return u.ContentType
	}
	return mimetype.Detect(u.Content).String()
}

// AnalysisClient calls the external analysis API. It holds no credentials;
// the API configuration travels with each call.
type AnalysisClient struct {
	baseURL    string
	httpClient *http.Client
}

// analyzeResponse is the success body of POST /api/analyze
type analyzeResponse struct {
	Analysis     string `json:"analysis"`
	KeyPoints    string `json:"key_points"`
	Negotiations string `json:"negotiations"`
}

func NewAnalysisClient(baseURL string, timeout time.Duration) *AnalysisClient {
	if baseURL == "" {
		baseURL = config.DefaultAnalysisAPIURL
	}
	return &AnalysisClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the default endpoint root.
func (c *AnalysisClient) BaseURL() string {
	return c.baseURL
}

// UploadAndAnalyze sends file to the analysis API and normalizes the result.
// The custom query is only sent for the Custom Query type and only when set.
func (c *AnalysisClient) UploadAndAnalyze(ctx context.Context, cfg model.APIConfig, file Upload, at model.AnalysisType) (*model.ContractData, error) {
	if !cfg.HasCredential() {
		return nil, ErrAPIKeyMissing
	}

	body, contentType, err := buildAnalyzeForm(cfg, file, at)
	if err != nil {
		return nil, err
	}

	baseURL := c.baseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/analyze", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logger.Info(ctx, "analysis API responded",
		"status", resp.StatusCode,
		"analysis_type", at.Type,
		"filename", file.Filename,
		"latency", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	var result analyzeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	return &model.ContractData{
		Analysis:     result.Analysis,
		KeyPoints:    result.KeyPoints,
		Negotiations: result.Negotiations,
	}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildAnalyzeForm(cfg model.APIConfig, file Upload, at model.AnalysisType) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Filename)))
	h.Set("Content-Type", file.DetectedContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	fields := [][2]string{
		{"openai_api_key", cfg.OpenAIAPIKey},
		{"analysis_type", string(at.Type)},
	}
	if at.IsCustom() && at.CustomQuery != "" {
		fields = append(fields, [2]string{"custom_query", at.CustomQuery})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// errorMessage extracts "detail" from a JSON error body. JSON without a
// usable detail gives the generic message. A body that is not JSON, or is
// JSON null, is used verbatim.
func errorMessage(body []byte) string {
	var payload map[string]json.RawMessage
	err := json.Unmarshal(body, &payload)
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		// strings, numbers, booleans and arrays carry no detail
		return defaultFailureMessage
	case err != nil || payload == nil:
		if text := string(body); text != "" {
			return text
		}
		return defaultFailureMessage
	}

	raw, ok := payload["detail"]
	if !ok {
		return defaultFailureMessage
	}
	switch string(raw) {
	case "null", "false", "0":
		return defaultFailureMessage
	}
	var detail string
	if err := json.Unmarshal(raw, &detail); err == nil {
		if detail == "" {
			return defaultFailureMessage
		}
		return detail
	}
	// structured details, such as validation error lists, are passed through as JSON
	return string(raw)
}
