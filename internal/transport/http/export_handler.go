package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fluxo/internal/dataprocessing"
	apierrors "fluxo/internal/errors"
	"fluxo/internal/exporter"
	"fluxo/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler streams the filtered data and analyses as a workbook.
type ExportHandler struct {
	service      *services.DatasetService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewExportHandler creates the export handler.
func NewExportHandler(service *services.DatasetService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ExportHandler {
	return &ExportHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "export_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the export routes.
func (h *ExportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Export)
	return r
}

// Export handles GET /api/export. The same filters as the analysis
// endpoints apply; the response is an xlsx attachment.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionID(w, r)

	f, apiErr := filterFromQuery(r)
	if apiErr != nil {
		h.errorHandler.HandleError(w, r, apiErr)
		return
	}

	table, err := h.service.Combined(sid, f)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	summary := dataprocessing.ProjectSummary(table)
	peaks := dataprocessing.PeaksSummary(dataprocessing.DetectPeaks(table))

	// Build fully in memory so a mid-write failure never leaks a
	// truncated body with a 200 status.
	var buf bytes.Buffer
	if err := exporter.WriteWorkbook(&buf, table, summary, peaks); err != nil {
		h.logger.ErrorContext(ctx, "workbook export failed",
			slog.String("session_id", sid),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, apierrors.ErrExportFailed)
		return
	}

	filename := exporter.Filename(time.Now())
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))

	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(ctx, "export download aborted",
			slog.String("session_id", sid),
			slog.String("error", err.Error()))
		return
	}

	h.logger.InfoContext(ctx, "export completed",
		slog.String("session_id", sid),
		slog.String("filename", filename),
		slog.Int("records", len(table)))
}
