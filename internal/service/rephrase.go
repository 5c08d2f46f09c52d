package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-copilot/internal/completion"
	apperrors "github.com/spec-kit/support-copilot/pkg/util/errorutil"
)

// RephraseService rewrites reviewer-edited text via the completion
// service. Used only by the review side, never by the drafting worker.
type RephraseService struct {
	drafter completion.Drafter
	logger  *zap.Logger
}

// NewRephraseService constructs the service.
func NewRephraseService(drafter completion.Drafter, logger *zap.Logger) *RephraseService {
	return &RephraseService{drafter: drafter, logger: logger}
}

// Rephrase validates the request and delegates to the completion service.
func (s *RephraseService) Rephrase(ctx context.Context, text string, temperature float64) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewValidationError("text required", nil)
	}
	if temperature < 0 || temperature > 1 {
		return "", apperrors.NewValidationError("temperature must be in [0,1]", map[string]any{"temperature": temperature})
	}
	result, err := s.drafter.Rephrase(ctx, text, temperature)
	if err != nil {
		s.logger.Error("rephrase failed", zap.Error(err))
		return "", err
	}
	return result, nil
}
