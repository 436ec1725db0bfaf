package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"cynix/models"
)

type CodeAgent interface {
	Run(ctx context.Context, req models.CodeAnalysisRequest) models.AnalysisEnvelope
}

type MemeAgent interface {
	Run(ctx context.Context, req models.MemeAnalysisRequest) models.AnalysisEnvelope
}

type InfluencerAgent interface {
	Run(ctx context.Context, req models.InfluencerAnalysisRequest) models.AnalysisEnvelope
}

// AnalyzeHandlers exposes the three analysis agents. Agent failures are
// reported inside the envelope, so these endpoints only fail on a bad body.
type AnalyzeHandlers struct {
	code       CodeAgent
	meme       MemeAgent
	influencer InfluencerAgent
}

func NewAnalyzeHandlers(code CodeAgent, meme MemeAgent, influencer InfluencerAgent) *AnalyzeHandlers {
	return &AnalyzeHandlers{code: code, meme: meme, influencer: influencer}
}

func (ah *AnalyzeHandlers) AnalyzeCode(c echo.Context) error {
	var req models.CodeAnalysisRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ah.code.Run(c.Request().Context(), req))
}

func (ah *AnalyzeHandlers) AnalyzeMeme(c echo.Context) error {
	var req models.MemeAnalysisRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ah.meme.Run(c.Request().Context(), req))
}

func (ah *AnalyzeHandlers) AnalyzeInfluencer(c echo.Context) error {
	var req models.InfluencerAnalysisRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ah.influencer.Run(c.Request().Context(), req))
}

func bindBody(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return models.NewAppErrorWithCause(models.ErrBadRequest, "invalid request body", err)
	}
	return nil
}
