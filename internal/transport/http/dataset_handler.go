package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"fluxo/internal/dataprocessing"
	apierrors "fluxo/internal/errors"
	"fluxo/internal/services"
)

// DatasetHandler handles upload and lifecycle of session datasets.
type DatasetHandler struct {
	service      *services.DatasetService
	maxFileBytes int64
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDatasetHandler creates the dataset handler.
func NewDatasetHandler(service *services.DatasetService, maxFileBytes int64, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DatasetHandler {
	return &DatasetHandler{
		service:      service,
		maxFileBytes: maxFileBytes,
		logger:       logger.With(slog.String("component", "dataset_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the dataset routes.
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/{kind}", h.Upload)
	r.Get("/", h.Status)
	r.Delete("/", h.Drop)

	return r
}

// uploadResponse is the body returned after a successful upload.
type uploadResponse struct {
	Success bool                    `json:"success"`
	Status  []services.DatasetStatus `json:"datasets"`
}

// Upload handles POST /api/datasets/{kind}. The body is multipart form data
// with one "file" part; the URL names the movement direction.
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionID(w, r)

	kind, err := dataprocessing.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("kind", err.Error()))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes)
	if err := r.ParseMultipartForm(h.maxFileBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.errorHandler.HandleError(w, r, apierrors.ErrPayloadTooLarge)
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "A file part named 'file' is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read upload body",
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, apierrors.ErrInternalServer)
		return
	}

	h.logger.InfoContext(ctx, "upload received",
		slog.String("session_id", sid),
		slog.String("kind", string(kind)),
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(data)))

	if _, err := h.service.ProcessUpload(ctx, sid, services.Upload{
		Kind:     kind,
		Filename: header.Filename,
		Data:     data,
	}); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	status, err := h.service.Status(sid)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, uploadResponse{Success: true, Status: status})
}

// Status handles GET /api/datasets.
func (h *DatasetHandler) Status(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	status, err := h.service.Status(sid)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"session_id": sid,
		"datasets":   status,
	})
}

// Drop handles DELETE /api/datasets.
func (h *DatasetHandler) Drop(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	if err := h.service.Drop(sid); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"success":    true,
		"session_id": sid,
	})
}
