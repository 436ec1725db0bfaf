package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cynix/config"
	"cynix/models"
)

// likelihood maps safe-search enum names onto 0..5.
var likelihood = map[string]int{
	"UNKNOWN":       0,
	"VERY_UNLIKELY": 1,
	"UNLIKELY":      2,
	"POSSIBLE":      3,
	"LIKELY":        4,
	"VERY_LIKELY":   5,
}

// VisionClient labels images and scores them for unsafe content.
type VisionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewVisionClient(cfg config.VisionConfig) *VisionClient {
	return &VisionClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type visionAnnotateResponse struct {
	Responses []struct {
		LabelAnnotations []struct {
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		} `json:"labelAnnotations"`
		SafeSearchAnnotation struct {
			Adult    string `json:"adult"`
			Violence string `json:"violence"`
			Spoof    string `json:"spoof"`
		} `json:"safeSearchAnnotation"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// AnalyzeImage runs label and safe-search detection on the image bytes.
func (v *VisionClient) AnalyzeImage(ctx context.Context, image []byte) (*models.ImageAnalysis, error) {
	if v.apiKey == "" {
		return nil, fmt.Errorf("vision api key not configured")
	}

	reqBody := map[string]any{
		"requests": []any{map[string]any{
			"image": map[string]string{"content": base64.StdEncoding.EncodeToString(image)},
			"features": []map[string]any{
				{"type": "LABEL_DETECTION", "maxResults": 10},
				{"type": "SAFE_SEARCH_DETECTION"},
			},
		}},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := v.baseURL + "/v1/images:annotate?key=" + url.QueryEscape(v.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out visionAnnotateResponse
	if err := doJSON(v.httpClient, req, &out); err != nil {
		return nil, fmt.Errorf("vision annotate: %w", err)
	}
	if len(out.Responses) == 0 {
		return nil, fmt.Errorf("vision annotate: empty response")
	}
	r := out.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("vision annotate: %s", r.Error.Message)
	}

	analysis := &models.ImageAnalysis{
		Labels: make([]models.ImageLabel, 0, len(r.LabelAnnotations)),
		SafetyScores: models.SafetyScores{
			Adult:    likelihood[r.SafeSearchAnnotation.Adult],
			Violence: likelihood[r.SafeSearchAnnotation.Violence],
			Spoof:    likelihood[r.SafeSearchAnnotation.Spoof],
		},
	}
	for _, l := range r.LabelAnnotations {
		analysis.Labels = append(analysis.Labels, models.ImageLabel{Description: l.Description, Score: l.Score})
	}
	return analysis, nil
}

// ReverseSearchClient looks up visually similar images.
type ReverseSearchClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewReverseSearchClient(cfg config.ReverseSearchConfig) *ReverseSearchClient {
	return &ReverseSearchClient{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Search uploads the image and returns every match the service reports.
func (r *ReverseSearchClient) Search(ctx context.Context, image []byte) (*models.ReverseSearchResult, error) {
	if r.apiKey == "" {
		return nil, fmt.Errorf("reverse search api key not configured")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "image")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Api-Key", r.apiKey)

	var out struct {
		Matches []struct {
			ImageURL string  `json:"image_url"`
			URL      string  `json:"url"`
			Score    float64 `json:"score"`
		} `json:"matches"`
	}
	if err := doJSON(r.httpClient, req, &out); err != nil {
		return nil, fmt.Errorf("reverse search: %w", err)
	}

	result := &models.ReverseSearchResult{Matches: make([]models.ImageMatch, 0, len(out.Matches))}
	for _, m := range out.Matches {
		u := m.ImageURL
		if u == "" {
			u = m.URL
		}
		result.Matches = append(result.Matches, models.ImageMatch{URL: u, Score: m.Score})
	}
	return result, nil
}

// TextGenerator sends a prompt to the model endpoint and returns its completion.
type TextGenerator struct {
	endpoint   string
	httpClient *http.Client
}

func NewTextGenerator(cfg config.ModelConfig) *TextGenerator {
	return &TextGenerator{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *TextGenerator) Enabled() bool {
	return g != nil && g.endpoint != ""
}

// Generate posts {prompt, max_new_tokens, temperature} and reads {text}.
func (g *TextGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if !g.Enabled() {
		return "", fmt.Errorf("model endpoint not configured")
	}

	data, err := json.Marshal(map[string]any{
		"prompt":         prompt,
		"max_new_tokens": maxTokens,
		"temperature":    temperature,
		"top_p":          0.9,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Text string `json:"text"`
	}
	if err := doJSON(g.httpClient, req, &out); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// FetchImage downloads an image, refusing bodies over 10 MiB.
func FetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	const maxImage = 10 << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImage+1))
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	if len(data) > maxImage {
		return nil, fmt.Errorf("download image: larger than %d bytes", maxImage)
	}
	return data, nil
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
