package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	fluxocharts "fluxo/internal/charts"
	"fluxo/internal/dataprocessing"
	apierrors "fluxo/internal/errors"
	"fluxo/internal/services"
)

// ChartsHandler renders analyses as standalone ECharts HTML pages.
type ChartsHandler struct {
	service      *services.DatasetService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewChartsHandler creates the charts handler.
func NewChartsHandler(service *services.DatasetService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ChartsHandler {
	return &ChartsHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "charts_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the chart routes.
func (h *ChartsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/timeline", h.Timeline)
	r.Get("/hourly", h.Hourly)
	r.Get("/weekday", h.Weekday)
	r.Get("/compare", h.Compare)
	r.Get("/peaks", h.Peaks)
	r.Get("/peaks/{project}", h.Peaks)

	return r
}

func (h *ChartsHandler) renderChart(w http.ResponseWriter, r *http.Request, chart fluxocharts.Chart) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chart.Render(w); err != nil {
		h.logger.ErrorContext(r.Context(), "chart render failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
}

// Timeline handles GET /charts/timeline.
func (h *ChartsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	f, apiErr := filterFromQuery(r)
	if apiErr != nil {
		h.errorHandler.HandleError(w, r, apiErr)
		return
	}

	kind := dataprocessing.KindEntrada
	if rawKind := r.URL.Query().Get("kind"); rawKind != "" {
		k, err := dataprocessing.ParseKind(rawKind)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("kind", err.Error()))
			return
		}
		kind = k
	}

	table, err := h.service.Filtered(sid, kind, f)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	series := dataprocessing.TimelineSeries(table)
	h.renderChart(w, r, fluxocharts.Timeline("Movimentos por hora ("+kind.Label()+")", series, kind))
}

// Hourly handles GET /charts/hourly.
func (h *ChartsHandler) Hourly(w http.ResponseWriter, r *http.Request) {
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

	h.renderChart(w, r, fluxocharts.HourlyAggregate("Padrão horário", dataprocessing.HourlyPatterns(table)))
}

// Weekday handles GET /charts/weekday.
func (h *ChartsHandler) Weekday(w http.ResponseWriter, r *http.Request) {
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

	h.renderChart(w, r, fluxocharts.Weekday("Padrão semanal", dataprocessing.WeekdayPatterns(table)))
}

// Compare handles GET /charts/compare.
func (h *ChartsHandler) Compare(w http.ResponseWriter, r *http.Request) {
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

	h.renderChart(w, r, fluxocharts.CompareEntradaSaida("Entrada vs Saída", dataprocessing.DailyComparison(table)))
}

// Peaks handles GET /charts/peaks/{project} and GET /charts/peaks?project=.
// The query form exists for pages that build URLs without path templating.
func (h *ChartsHandler) Peaks(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	project := chi.URLParam(r, "project")
	if project == "" {
		project = r.URL.Query().Get("project")
	}
	if project == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("project", "Project line is required"))
		return
	}

	f, apiErr := filterFromQuery(r)
	if apiErr != nil {
		h.errorHandler.HandleError(w, r, apiErr)
		return
	}
	f.Projects = []string{project}

	table, err := h.service.Combined(sid, f)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	series := dataprocessing.TimelineSeries(table)
	points, ok := series[project]
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("Project line "+project))
		return
	}

	peaks := dataprocessing.ProjectPeaks{ProjectLine: project}
	for _, pp := range dataprocessing.DetectPeaks(table) {
		if pp.ProjectLine == project {
			peaks = pp
			break
		}
	}

	h.renderChart(w, r, fluxocharts.Peaks("Picos e vales", points, peaks))
}
