package ai

import (
	"errors"

	"github.com/kiranshivaraju/labelscan/internal/ai/llm"
)

var (
	ErrProviderUnavailable = llm.ErrProviderUnavailable
	ErrInferenceTimeout    = llm.ErrInferenceTimeout
	ErrInvalidResponse     = llm.ErrInvalidResponse
	ErrInvalidDataURI      = errors.New("invalid image data URI")
)
