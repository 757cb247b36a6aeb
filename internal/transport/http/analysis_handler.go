package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"fluxo/internal/dataprocessing"
	apierrors "fluxo/internal/errors"
	"fluxo/internal/services"
)

// AnalysisHandler serves the temporal analyses of loaded datasets.
type AnalysisHandler struct {
	service      *services.DatasetService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewAnalysisHandler creates the analysis handler.
func NewAnalysisHandler(service *services.DatasetService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	return &AnalysisHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "analysis_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the analysis routes.
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/metrics", h.Metrics)
	r.Get("/summary", h.Summary)
	r.Get("/timeline", h.Timeline)
	r.Get("/hourly", h.Hourly)
	r.Get("/daily", h.Daily)
	r.Get("/weekday", h.Weekday)
	r.Get("/dayhour", h.DayHour)
	r.Get("/peaks", h.Peaks)
	r.Get("/compare", h.Compare)

	return r
}

// filterFromQuery builds the dataset filter from query parameters:
// projects (comma separated), from and to (YYYY-MM-DD or DD/MM/YYYY).
func filterFromQuery(r *http.Request) (services.Filter, *apierrors.APIError) {
	var f services.Filter

	if raw := r.URL.Query().Get("projects"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				f.Projects = append(f.Projects, p)
			}
		}
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return f, apierrors.ErrValidation("from", "Invalid date, expected YYYY-MM-DD or DD/MM/YYYY")
		}
		f.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return f, apierrors.ErrValidation("to", "Invalid date, expected YYYY-MM-DD or DD/MM/YYYY")
		}
		f.To = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, apierrors.ErrValidation("to", "End date precedes start date")
	}

	return f, nil
}

// tableFromQuery resolves the records an analysis should run over. An
// explicit kind selects one dataset; otherwise both are combined.
func (h *AnalysisHandler) tableFromQuery(w http.ResponseWriter, r *http.Request) (dataprocessing.CleanedTable, bool) {
	sid := sessionID(w, r)

	f, apiErr := filterFromQuery(r)
	if apiErr != nil {
		h.errorHandler.HandleError(w, r, apiErr)
		return nil, false
	}

	var (
		table dataprocessing.CleanedTable
		err   error
	)
	if rawKind := r.URL.Query().Get("kind"); rawKind != "" {
		kind, kerr := dataprocessing.ParseKind(rawKind)
		if kerr != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("kind", kerr.Error()))
			return nil, false
		}
		table, err = h.service.Filtered(sid, kind, f)
	} else {
		table, err = h.service.Combined(sid, f)
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}

	return table, true
}

// Metrics handles GET /api/analysis/metrics, the dashboard headline row.
func (h *AnalysisHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	f, apiErr := filterFromQuery(r)
	if apiErr != nil {
		h.errorHandler.HandleError(w, r, apiErr)
		return
	}

	metrics, err := h.service.Metrics(sid, f)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"metrics": metrics,
	})
}

// Summary handles GET /api/analysis/summary.
func (h *AnalysisHandler) Summary(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableFromQuery(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"summary": dataprocessing.ProjectSummary(table),
	})
}

// Timeline handles GET /api/analysis/timeline.
func (h *AnalysisHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableFromQuery(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"series": dataprocessing.TimelineSeries(table),
	})
}

// Hourly handles GET /api/analysis/hourly.
func (h *AnalysisHandler) Hourly(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableFromQuery(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"hourly": dataprocessing.HourlyPatterns(table),
	})
}

// Daily handles GET /api/analysis/daily.
func (h *AnalysisHandler) Daily(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableFromQuery(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"daily": dataprocessing.DailyPatterns(table),
	})
}

// Weekday handles GET /api/analysis/weekday.
func (h *AnalysisHandler) Weekday(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableFromQuery(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"weekday": dataprocessing.WeekdayPatterns(table),
	})
}

// DayHour handles GET /api/analysis/dayhour.
func (h *AnalysisHandler) DayHour(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableFromQuery(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"dayhour": dataprocessing.DayHourPatterns(table),
	})
}

// Peaks handles GET /api/analysis/peaks.
func (h *AnalysisHandler) Peaks(w http.ResponseWriter, r *http.Request) {
	table, ok := h.tableFromQuery(w, r)
	if !ok {
		return
	}
	peaks := dataprocessing.DetectPeaks(table)
	render.JSON(w, r, map[string]interface{}{
		"peaks":   peaks,
		"summary": dataprocessing.PeaksSummary(peaks),
	})
}

// Compare handles GET /api/analysis/compare. It always runs over the
// combined table so both movement directions are represented.
func (h *AnalysisHandler) Compare(w http.ResponseWriter, r *http.Request) {
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

	render.JSON(w, r, map[string]interface{}{
		"comparison": dataprocessing.DailyComparison(table),
	})
}
