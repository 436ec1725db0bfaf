// Package agents scores code projects, memes and influencers from upstream
// signals. Every analysis is returned inside a models.AnalysisEnvelope.
package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cynix/models"
)

const (
	AuraAgentType = "AuraAgent"
	MycaAgentType = "MycaAgent"
	InfyAgentType = "InfyAgent"
)

// Generator produces free-text commentary from a prompt.
type Generator interface {
	Enabled() bool
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// run executes fn and wraps its outcome in the response envelope.
// Failures become status "error" and are never returned as Go errors.
func run[T any](ctx context.Context, agentType string, logger *zap.Logger, fn func(context.Context) (T, error)) models.AnalysisEnvelope {
	start := time.Now()
	result, err := fn(ctx)
	if err != nil {
		logger.Error("Analysis failed",
			zap.String("agent", agentType),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return models.AnalysisEnvelope{
			Status:    "error",
			AgentType: agentType,
			Timestamp: time.Now().UTC(),
			Error:     err.Error(),
		}
	}

	logger.Debug("Analysis complete",
		zap.String("agent", agentType),
		zap.Duration("duration", time.Since(start)))
	return models.AnalysisEnvelope{
		Status:    "success",
		AgentType: agentType,
		Timestamp: time.Now().UTC(),
		Data:      result,
	}
}

// commentary asks the generator for text. It returns "" when no generator
// is configured or the call fails.
func commentary(ctx context.Context, gen Generator, logger *zap.Logger, prompt string, maxTokens int, temperature float64) string {
	if gen == nil || !gen.Enabled() {
		return ""
	}
	text, err := gen.Generate(ctx, prompt, maxTokens, temperature)
	if err != nil {
		logger.Warn("Model analysis unavailable", zap.Error(err))
		return ""
	}
	return text
}
