// Package scan runs the label pipeline: validate the photo, extract
// ingredient names, analyze their risk and suggest alternative products.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/kiranshivaraju/labelscan/internal/ai"
	"github.com/kiranshivaraju/labelscan/internal/imaging"
	"github.com/kiranshivaraju/labelscan/internal/metrics"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// User-visible messages.
const (
	MsgSuccess          = "Ingredients processed successfully."
	MsgUnexpected       = "An unexpected error occurred while processing the image. Please try again."
	MsgNoIngredients    = "Could not extract any ingredients from the image. The image might be unclear or not contain an ingredient list."
	MsgEmptyFile        = "No image file provided or file is empty."
	MsgInvalidType      = "Invalid file type. Please upload an image."
	MsgUnsupportedImage = "Unsupported image format. Please upload a JPEG, PNG, GIF or WebP image."
	MsgCorruptImage     = "The image could not be read. Please upload a valid image file."
	MsgImageTooLarge    = "The image dimensions are too large. Please upload a smaller image."
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrExtractionFailed = errors.New("ingredient extraction failed")
	ErrNoIngredients    = errors.New("no ingredients recognized")
	ErrInternal         = errors.New("internal error")
)

// ErrorKind classifies a failed run without matching on messages.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindInvalidInput     ErrorKind = "invalid_input"
	KindExtractionFailed ErrorKind = "extraction_failed"
	KindNoIngredients    ErrorKind = "no_ingredients"
	KindInternal         ErrorKind = "internal_error"
)

// ImageFile is an uploaded photo.
type ImageFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Outcome is the result of one run. Exactly one of Data and Error is set.
type Outcome struct {
	Data    *models.ProcessedScanData `json:"data"`
	Error   string                    `json:"error,omitempty"`
	Message string                    `json:"message,omitempty"`
	Kind    ErrorKind                 `json:"kind,omitempty"`

	// Err carries the classified cause for logging and errors.Is.
	Err error `json:"-"`
	// Image is the normalized photo sent to the model, set on success.
	Image *imaging.Prepared `json:"-"`
}

// OK reports whether the run succeeded.
func (o Outcome) OK() bool { return o.Data != nil }

type Extractor interface {
	Extract(ctx context.Context, photoDataURI string) ([]string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, names []string) []models.Ingredient
}

type Suggester interface {
	Suggest(ctx context.Context, ingredients []string) ([]models.AlternativeProduct, error)
}

// Service runs the pipeline. It holds no per-run state and is safe for
// concurrent use.
type Service struct {
	extractor Extractor
	analyzer  Analyzer
	suggester Suggester
}

func NewService(extractor Extractor, analyzer Analyzer, suggester Suggester) *Service {
	return &Service{extractor: extractor, analyzer: analyzer, suggester: suggester}
}

// run tracks the state of one ProcessImage call.
type run struct {
	file      string
	state     State
	observers []Observer
}

func (r *run) to(next State) {
	prev := r.state
	r.state = next
	slog.Debug("scan state", "file", r.file, "from", prev, "to", next)
	for _, o := range r.observers {
		o.OnTransition(prev, next)
	}
}

func (r *run) fail(kind ErrorKind, msg string, err error) Outcome {
	r.to(StateError)
	return Outcome{Error: msg, Kind: kind, Err: err}
}

// ProcessImage runs one photo through the pipeline. It never panics and never
// returns both data and an error.
func (s *Service) ProcessImage(ctx context.Context, file ImageFile, observers ...Observer) (out Outcome) {
	r := &run{file: file.FileName, state: StateIdle, observers: observers}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("panic processing image",
				"file", file.FileName,
				"state", r.state,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			out = Outcome{Error: MsgUnexpected, Kind: KindInternal, Err: fmt.Errorf("%w: panic: %v", ErrInternal, p)}
			if prev := r.state; prev != StateError {
				r.state = StateError
				notifyQuietly(r.observers, prev, StateError)
			}
		}
		label := string(out.Kind)
		if out.OK() {
			label = "ok"
		}
		metrics.ScansTotal.WithLabelValues(label).Inc()
	}()

	r.to(StateValidating)
	prepared, err := imaging.Prepare(file.ContentType, file.Data)
	if err != nil {
		slog.Info("rejected image", "file", file.FileName, "content_type", file.ContentType, "error", err)
		return r.fail(KindInvalidInput, validationMessage(file.ContentType, err), fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}

	r.to(StateExtracting)
	names, err := s.extractor.Extract(ctx, ai.EncodeDataURI(prepared.MIMEType, prepared.Data))
	if err != nil {
		slog.Error("extracting ingredients", "file", file.FileName, "error", err)
		return r.fail(KindExtractionFailed, MsgUnexpected, fmt.Errorf("%w: %w", ErrExtractionFailed, err))
	}
	if len(names) == 0 {
		return r.fail(KindNoIngredients, MsgNoIngredients, ErrNoIngredients)
	}

	r.to(StateAnalyzing)
	detailed := s.analyzer.Analyze(ctx, names)
	if detailed == nil {
		detailed = []models.Ingredient{}
	}

	var flagged []string
	for _, ing := range detailed {
		if ing.RiskLevel.Flagged() {
			flagged = append(flagged, ing.Name)
		}
	}

	alternatives := []models.AlternativeProduct{}
	if len(flagged) > 0 {
		r.to(StateSuggestingAlternatives)
		alternatives = s.suggest(ctx, flagged)
	}

	r.to(StateDone)
	slog.Info("processed image",
		"file", file.FileName,
		"ingredients", len(detailed),
		"flagged", len(flagged),
		"alternatives", len(alternatives),
	)

	return Outcome{
		Data: &models.ProcessedScanData{
			DetailedIngredients: detailed,
			Alternatives:        alternatives,
		},
		Message: MsgSuccess,
		Image:   prepared,
	}
}

// suggest absorbs every suggester failure, including panics, as no
// alternatives.
func (s *Service) suggest(ctx context.Context, flagged []string) (out []models.AlternativeProduct) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("panic suggesting alternatives", "panic", p)
			metrics.AlternativesFailedTotal.Inc()
			out = []models.AlternativeProduct{}
		}
	}()

	products, err := s.suggester.Suggest(ctx, flagged)
	if err != nil {
		slog.Warn("suggesting alternatives failed", "ingredients", flagged, "error", err)
		metrics.AlternativesFailedTotal.Inc()
		return []models.AlternativeProduct{}
	}
	if products == nil {
		return []models.AlternativeProduct{}
	}
	return products
}

// notifyQuietly reports the Error transition after a panic without letting a
// misbehaving observer panic again.
func notifyQuietly(observers []Observer, from, to State) {
	defer func() { _ = recover() }()
	for _, o := range observers {
		o.OnTransition(from, to)
	}
}

func validationMessage(declaredType string, err error) string {
	switch {
	case errors.Is(err, imaging.ErrEmpty):
		return MsgEmptyFile
	case errors.Is(err, imaging.ErrCorrupt):
		return MsgCorruptImage
	case errors.Is(err, imaging.ErrTooLarge):
		return MsgImageTooLarge
	case strings.HasPrefix(strings.ToLower(strings.TrimSpace(declaredType)), "image/"):
		return MsgUnsupportedImage
	default:
		return MsgInvalidType
	}
}
