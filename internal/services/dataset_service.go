// Package services holds the business layer between HTTP transport and the
// movement-data processing core: session-scoped dataset storage, the upload
// pipeline and the analysis entry points.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fluxo/internal/dataprocessing"
	apierrors "fluxo/internal/errors"
	"fluxo/internal/infrastructure"
)

// Broadcaster pushes dataset lifecycle events to connected dashboard pages.
type Broadcaster interface {
	BroadcastJSON(msgType string, payload interface{})
}

// Dataset is the processed state of one uploaded movement file.
type Dataset struct {
	Kind       dataprocessing.Kind         `json:"kind"`
	Filename   string                      `json:"filename"`
	Table      dataprocessing.CleanedTable `json:"-"`
	Report     dataprocessing.ParseReport  `json:"report"`
	UploadedAt time.Time                   `json:"uploaded_at"`
}

// session groups the datasets of one browser session.
type session struct {
	mu       sync.RWMutex
	datasets map[dataprocessing.Kind]*Dataset
	lastUsed time.Time
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Filter narrows analysis and export to a project-line and date selection.
type Filter struct {
	Projects []string
	From     time.Time
	To       time.Time
}

// Upload is one file handed to the processing pipeline.
type Upload struct {
	Kind     dataprocessing.Kind
	Filename string
	Data     []byte
}

// DatasetStatus is the lightweight per-kind view returned by Status.
type DatasetStatus struct {
	Kind       dataprocessing.Kind        `json:"kind"`
	Filename   string                     `json:"filename"`
	Report     dataprocessing.ParseReport `json:"report"`
	Records    int                        `json:"records"`
	Projects   []string                   `json:"projects"`
	FirstDate  time.Time                  `json:"first_date"`
	LastDate   time.Time                  `json:"last_date"`
	UploadedAt time.Time                  `json:"uploaded_at"`
}

// DatasetService owns all in-memory session state. Sessions idle longer
// than the configured TTL are swept by a background janitor.
type DatasetService struct {
	mu       sync.RWMutex
	sessions map[string]*session

	ttl         time.Duration
	logger      *slog.Logger
	metrics     *infrastructure.AppMetrics
	broadcaster Broadcaster

	sweepQuit chan struct{}
	sweepOnce sync.Once
}

// NewDatasetService creates the service. metrics and broadcaster may be nil.
func NewDatasetService(ttl time.Duration, logger *slog.Logger, metrics *infrastructure.AppMetrics, broadcaster Broadcaster) *DatasetService {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &DatasetService{
		sessions:    make(map[string]*session),
		ttl:         ttl,
		logger:      logger.With(slog.String("component", "dataset_service")),
		metrics:     metrics,
		broadcaster: broadcaster,
		sweepQuit:   make(chan struct{}),
	}
}

// StartJanitor launches the periodic sweep of expired sessions.
func (s *DatasetService) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.sweepQuit:
				return
			}
		}
	}()
}

// StopJanitor terminates the sweep goroutine.
func (s *DatasetService) StopJanitor() {
	s.sweepOnce.Do(func() { close(s.sweepQuit) })
}

func (s *DatasetService) sweep() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		sess.mu.RLock()
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.RUnlock()
		if idle {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	if len(expired) > 0 {
		s.logger.Info("expired sessions swept",
			slog.Int("expired", len(expired)),
			slog.Int("remaining", remaining))
	}
}

func (s *DatasetService) getSession(sessionID string) (*session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		sess.touch()
	}
	return sess, ok
}

func (s *DatasetService) getOrCreateSession(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{
			datasets: make(map[dataprocessing.Kind]*Dataset),
			lastUsed: time.Now(),
		}
		s.sessions[sessionID] = sess
	} else {
		sess.lastUsed = time.Now()
	}
	return sess
}

// ProcessUpload runs the full pipeline for one file: decode, validate the
// header contract, parse the temporal columns and normalize the sign
// convention. The result replaces any previous dataset of the same kind.
func (s *DatasetService) ProcessUpload(ctx context.Context, sessionID string, up Upload) (*Dataset, error) {
	logger := s.logger.With(
		slog.String("session_id", sessionID),
		slog.String("kind", string(up.Kind)),
		slog.String("filename", up.Filename),
	)

	raw, err := dataprocessing.Load(up.Data, logger)
	if err != nil {
		if decodeErr, ok := err.(*dataprocessing.DecodeError); ok {
			return nil, apierrors.UnreadableFileError(decodeErr.PrimaryErr, decodeErr.FallbackErr)
		}
		return nil, err
	}

	if missing := dataprocessing.ValidateColumns(raw); len(missing) > 0 {
		logger.WarnContext(ctx, "upload rejected, missing columns",
			slog.Any("missing", missing))
		return nil, apierrors.MissingColumnsError(missing)
	}

	table, report := dataprocessing.ParseTemporal(raw)
	if len(table) == 0 {
		logger.WarnContext(ctx, "upload rejected, no parsable rows",
			slog.Int("total_rows", report.TotalRows),
			slog.Int("dropped", report.Dropped()))
		return nil, apierrors.ErrEmptyDataset
	}
	table = dataprocessing.Normalize(table, up.Kind)

	ds := &Dataset{
		Kind:       up.Kind,
		Filename:   up.Filename,
		Table:      table,
		Report:     report,
		UploadedAt: time.Now(),
	}

	sess := s.getOrCreateSession(sessionID)
	sess.mu.Lock()
	sess.datasets[up.Kind] = ds
	sess.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordUpload(ctx, string(up.Kind), report.ParsedRows, report.Dropped())
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastJSON("dataset:loaded", map[string]interface{}{
			"session_id": sessionID,
			"kind":       up.Kind,
			"filename":   up.Filename,
			"records":    report.ParsedRows,
			"report":     report,
		})
	}

	logger.InfoContext(ctx, "upload processed",
		slog.Int("total_rows", report.TotalRows),
		slog.Int("parsed_rows", report.ParsedRows),
		slog.Int("dropped", report.Dropped()))

	return ds, nil
}

// ProcessUploads processes several files concurrently. On any failure the
// whole batch is rejected and no dataset is stored.
func (s *DatasetService) ProcessUploads(ctx context.Context, sessionID string, uploads []Upload) ([]*Dataset, error) {
	results := make([]*Dataset, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			ds, err := s.ProcessUpload(gctx, sessionID, up)
			if err != nil {
				return fmt.Errorf("%s: %w", up.Filename, err)
			}
			results[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns the dataset of one kind for a session.
func (s *DatasetService) Get(sessionID string, kind dataprocessing.Kind) (*Dataset, error) {
	sess, ok := s.getSession(sessionID)
	if !ok {
		return nil, apierrors.DatasetNotFoundError(sessionID)
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	ds, ok := sess.datasets[kind]
	if !ok {
		return nil, apierrors.DatasetNotFoundError(sessionID)
	}
	return ds, nil
}

// Combined returns the concatenation of every dataset in the session,
// filtered. Records keep their normalized signs and kind tags.
func (s *DatasetService) Combined(sessionID string, f Filter) (dataprocessing.CleanedTable, error) {
	sess, ok := s.getSession(sessionID)
	if !ok {
		return nil, apierrors.DatasetNotFoundError(sessionID)
	}

	sess.mu.RLock()
	var combined dataprocessing.CleanedTable
	for _, ds := range sess.datasets {
		combined = append(combined, ds.Table...)
	}
	sess.mu.RUnlock()

	if len(combined) == 0 {
		return nil, apierrors.DatasetNotFoundError(sessionID)
	}

	return dataprocessing.ApplyFilters(combined, f.Projects, f.From, f.To), nil
}

// Filtered returns one kind's records after filtering.
func (s *DatasetService) Filtered(sessionID string, kind dataprocessing.Kind, f Filter) (dataprocessing.CleanedTable, error) {
	ds, err := s.Get(sessionID, kind)
	if err != nil {
		return nil, err
	}
	return dataprocessing.ApplyFilters(ds.Table, f.Projects, f.From, f.To), nil
}

// HeadlineMetrics are the dashboard headline numbers for a session.
type HeadlineMetrics struct {
	Records      int       `json:"records"`
	ProjectLines []string  `json:"project_lines"`
	TotalEntrada float64   `json:"total_entrada"`
	TotalSaida   float64   `json:"total_saida"`
	FirstDate    time.Time `json:"first_date"`
	LastDate     time.Time `json:"last_date"`
	PeriodDays   int       `json:"period_days"`
}

// Metrics computes the headline numbers over the filtered combined table.
// TotalSaida is reported as a magnitude.
func (s *DatasetService) Metrics(sessionID string, f Filter) (HeadlineMetrics, error) {
	table, err := s.Combined(sessionID, f)
	if err != nil {
		return HeadlineMetrics{}, err
	}

	m := HeadlineMetrics{
		Records:      len(table),
		ProjectLines: table.ProjectLines(),
	}
	for _, rec := range table {
		if rec.Kind == dataprocessing.KindSaida {
			m.TotalSaida += math.Abs(rec.Quantity)
		} else {
			m.TotalEntrada += rec.Quantity
		}
	}
	m.TotalEntrada = math.Round(m.TotalEntrada*100) / 100
	m.TotalSaida = math.Round(m.TotalSaida*100) / 100

	first, last := table.TimeRange()
	m.FirstDate, m.LastDate = first, last
	if !first.IsZero() {
		firstDay := first.Truncate(24 * time.Hour)
		lastDay := last.Truncate(24 * time.Hour)
		m.PeriodDays = int(lastDay.Sub(firstDay).Hours()/24) + 1
	}

	return m, nil
}

// Status summarizes every dataset held for the session.
func (s *DatasetService) Status(sessionID string) ([]DatasetStatus, error) {
	sess, ok := s.getSession(sessionID)
	if !ok {
		return nil, apierrors.DatasetNotFoundError(sessionID)
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()

	statuses := make([]DatasetStatus, 0, len(sess.datasets))
	for _, kind := range []dataprocessing.Kind{dataprocessing.KindEntrada, dataprocessing.KindSaida} {
		ds, ok := sess.datasets[kind]
		if !ok {
			continue
		}
		first, last := ds.Table.TimeRange()
		statuses = append(statuses, DatasetStatus{
			Kind:       ds.Kind,
			Filename:   ds.Filename,
			Report:     ds.Report,
			Records:    len(ds.Table),
			Projects:   ds.Table.ProjectLines(),
			FirstDate:  first,
			LastDate:   last,
			UploadedAt: ds.UploadedAt,
		})
	}
	return statuses, nil
}

// Drop removes the whole session and its datasets.
func (s *DatasetService) Drop(sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return apierrors.DatasetNotFoundError(sessionID)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastJSON("dataset:dropped", map[string]interface{}{
			"session_id": sessionID,
		})
	}

	s.logger.Info("session dropped", slog.String("session_id", sessionID))
	return nil
}

// SessionCount returns the number of live sessions.
func (s *DatasetService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
