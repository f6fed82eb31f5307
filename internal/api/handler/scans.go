package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/labelscan/internal/api/middleware"
	"github.com/kiranshivaraju/labelscan/internal/api/response"
	"github.com/kiranshivaraju/labelscan/internal/history"
	"github.com/kiranshivaraju/labelscan/internal/scan"
	"github.com/kiranshivaraju/labelscan/internal/storage"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// Scanner runs one image through the label pipeline.
type Scanner interface {
	ProcessImage(ctx context.Context, file scan.ImageFile, observers ...scan.Observer) scan.Outcome
}

// Recorder persists successful scans: the image (when storage is enabled)
// and the history entry.
type Recorder struct {
	history history.Store
	images  storage.ImageStore
	now     func() time.Time
}

func NewRecorder(h history.Store, images storage.ImageStore) *Recorder {
	if images == nil {
		images = storage.NopStore{}
	}
	return &Recorder{history: h, images: images, now: time.Now}
}

// Record builds the history entry for a successful outcome. Upload and
// history failures are logged and never fail the scan.
func (rc *Recorder) Record(ctx context.Context, owner string, file scan.ImageFile, out scan.Outcome) (*models.ScanResult, error) {
	result, err := models.NewScanResult(*out.Data, file.FileName, "", rc.now())
	if err != nil {
		return nil, err
	}

	if out.Image != nil {
		key := storage.ObjectKey(owner, result.ID, out.Image.MIMEType)
		url, err := rc.images.Put(ctx, key, out.Image.MIMEType, out.Image.Data)
		if err != nil {
			slog.Warn("storing scan image", "owner", owner, "scan_id", result.ID, "error", err)
		}
		result.ImageURL = url
	}

	if err := rc.history.Append(ctx, owner, *result); err != nil {
		slog.Error("appending scan to history", "owner", owner, "scan_id", result.ID, "error", err)
	}
	return result, nil
}

// ScanHandler serves the scan and history endpoints.
type ScanHandler struct {
	scanner   Scanner
	recorder  *Recorder
	history   history.Store
	maxUpload int64
}

func NewScanHandler(scanner Scanner, recorder *Recorder, h history.Store, maxUpload int64) *ScanHandler {
	return &ScanHandler{scanner: scanner, recorder: recorder, history: h, maxUpload: maxUpload}
}

// multipartOverhead is the body allowance for form boundaries and headers.
const multipartOverhead = 64 << 10

type scanResponse struct {
	Scan    *models.ScanResult `json:"scan"`
	Message string             `json:"message"`
}

// Create handles POST /api/v1/scans with a multipart "image" field.
func (h *ScanHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(w)
			return
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form with an image field", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var file scan.ImageFile
	f, hdr, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// An absent file goes through validation like an empty one.
	case err != nil:
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read the image field", nil)
		return
	default:
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read the image field", nil)
			return
		}
		if int64(len(data)) > h.maxUpload {
			h.tooLarge(w)
			return
		}
		file = scan.ImageFile{FileName: hdr.Filename, ContentType: hdr.Header.Get("Content-Type"), Data: data}
	}

	out := h.scanner.ProcessImage(r.Context(), file)
	if !out.OK() {
		status, code := outcomeStatus(out.Kind)
		response.Error(w, status, code, out.Error, nil)
		return
	}

	result, err := h.recorder.Record(r.Context(), owner, file, out)
	if err != nil {
		slog.Error("recording scan", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", scan.MsgUnexpected, nil)
		return
	}
	response.Created(w, scanResponse{Scan: result, Message: out.Message})
}

func (h *ScanHandler) tooLarge(w http.ResponseWriter) {
	response.Error(w, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE",
		"The uploaded image is too large", map[string]int64{"max_bytes": h.maxUpload})
}

// List handles GET /api/v1/scans, most recent first.
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	results, err := h.history.List(r.Context(), owner)
	if err != nil {
		slog.Error("listing history", "owner", owner, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not load scan history", nil)
		return
	}
	if results == nil {
		results = []models.ScanResult{}
	}
	response.JSON(w, results)
}

// Delete handles DELETE /api/v1/scans/{scanID}.
func (h *ScanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "scanID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_SCAN_ID", "scanID must be a UUID", nil)
		return
	}

	err = h.history.RemoveByID(r.Context(), owner, id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		response.Error(w, http.StatusNotFound, "SCAN_NOT_FOUND", "Scan not found in history", nil)
	case err != nil:
		slog.Error("removing scan", "owner", owner, "scan_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not remove scan", nil)
	default:
		response.NoContent(w)
	}
}

// Clear handles DELETE /api/v1/scans.
func (h *ScanHandler) Clear(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}
	if err := h.history.Clear(r.Context(), owner); err != nil {
		slog.Error("clearing history", "owner", owner, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not clear scan history", nil)
		return
	}
	response.NoContent(w)
}

func ownerOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return "", false
	}
	return userID.String(), true
}

// outcomeStatus maps a failed run to its HTTP status and error code.
func outcomeStatus(kind scan.ErrorKind) (int, string) {
	switch kind {
	case scan.KindInvalidInput:
		return http.StatusBadRequest, "INVALID_IMAGE"
	case scan.KindExtractionFailed:
		return http.StatusUnprocessableEntity, "EXTRACTION_FAILED"
	case scan.KindNoIngredients:
		return http.StatusUnprocessableEntity, "NO_INGREDIENTS"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
