package agents

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cynix/models"
	"cynix/services"
	"cynix/utils"
)

var memeLabels = map[string]bool{
	"meme":     true,
	"funny":    true,
	"humor":    true,
	"viral":    true,
	"trending": true,
}

// VisionAnalyzer labels an image and rates its safety.
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, image []byte) (*models.ImageAnalysis, error)
}

// ReverseSearcher finds published copies of an image.
type ReverseSearcher interface {
	Search(ctx context.Context, image []byte) (*models.ReverseSearchResult, error)
}

// Myca scores a meme image for originality and viral potential.
type Myca struct {
	vision     VisionAnalyzer
	search     ReverseSearcher
	model      Generator
	httpClient *http.Client
	logger     *zap.Logger
}

func NewMyca(vision VisionAnalyzer, search ReverseSearcher, model Generator, logger *zap.Logger) *Myca {
	return &Myca{
		vision:     vision,
		search:     search,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("myca"),
	}
}

func (m *Myca) Run(ctx context.Context, req models.MemeAnalysisRequest) models.AnalysisEnvelope {
	return run(ctx, MycaAgentType, m.logger, func(ctx context.Context) (*models.MemeAnalysisResult, error) {
		return m.AnalyzeMeme(ctx, req.ImageURL)
	})
}

// AnalyzeMeme downloads the image, hashes it, and runs reverse search and
// content analysis concurrently.
func (m *Myca) AnalyzeMeme(ctx context.Context, imageURL string) (*models.MemeAnalysisResult, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, models.NewAppError(models.ErrBadRequest, "missing image_url")
	}

	data, err := services.FetchImage(ctx, m.httpClient, imageURL)
	if err != nil {
		return nil, err
	}

	hash, err := AverageHash(data)
	if err != nil {
		return nil, err
	}

	var (
		matches *models.ReverseSearchResult
		content *models.ImageAnalysis
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		matches, err = m.search.Search(gctx, data)
		if err != nil {
			return fmt.Errorf("reverse search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		content, err = m.vision.AnalyzeImage(gctx, data)
		if err != nil {
			return fmt.Errorf("vision: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	similar := len(matches.Matches)
	top := matches.Matches
	if len(top) > 5 {
		top = top[:5]
	}
	if top == nil {
		top = []models.ImageMatch{}
	}

	result := &models.MemeAnalysisResult{
		ImageHash:        hash,
		IsOriginal:       similar == 0,
		OriginalityScore: OriginalityScore(similar),
		AlphaScore:       utils.Round2(MemeAlphaScore(content)),
		SimilarImages:    top,
		ContentAnalysis:  *content,
	}
	result.ModelAnalysis = commentary(ctx, m.model, m.logger, memePrompt(result), 256, 0.8)
	return result, nil
}

// AverageHash decodes a PNG, JPEG or GIF and returns its 64-bit average hash.
func AverageHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", models.NewAppErrorWithCause(models.ErrBadRequest, "unsupported image format", err)
	}
	hash, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", fmt.Errorf("hash image: %w", err)
	}
	return hash.ToString(), nil
}

// OriginalityScore drops by 0.1 per published copy, reaching 0 at ten.
func OriginalityScore(similar int) float64 {
	return 1 - float64(min(similar, 10))/10
}

// MemeAlphaScore rewards meme-related labels and penalizes unsafe content.
func MemeAlphaScore(a *models.ImageAnalysis) float64 {
	if a == nil {
		return 0
	}
	var relevance float64
	for _, l := range a.Labels {
		if memeLabels[strings.ToLower(l.Description)] {
			relevance += l.Score
		}
	}
	s := a.SafetyScores
	penalty := float64(s.Adult+s.Violence+s.Spoof) / 15
	return utils.Clamp(relevance*100-penalty*50, 0, 100)
}

func memePrompt(r *models.MemeAnalysisResult) string {
	labels := make([]string, 0, len(r.ContentAnalysis.Labels))
	for _, l := range r.ContentAnalysis.Labels {
		labels = append(labels, l.Description)
	}
	return fmt.Sprintf(`Analyze the following meme image features for viral potential:
Labels: %s
Original: %t
Originality score: %.2f
Alpha score: %.1f

Describe the meme's viral potential and its target community.`,
		strings.Join(labels, ", "), r.IsOriginal, r.OriginalityScore, r.AlphaScore)
}
