package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fluxo/internal/dataprocessing"
	apierrors "fluxo/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildMovementFile(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	header := []interface{}{
		"Linha MAE", "Linha ATO", "Semiacabado", "Quantidade",
		"Data Movimento", "Código Movimento", "Movimento", "Área",
	}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func movementRow(project, qty, ts string) []interface{} {
	return []interface{}{"MAE-1", project, "SA-1", qty, ts, "601", "Movimento", "Montagem"}
}

type broadcastEvent struct {
	msgType string
	payload interface{}
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *captureBroadcaster) BroadcastJSON(msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{msgType: msgType, payload: payload})
}

func (b *captureBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.msgType
	}
	return out
}

func (b *captureBroadcaster) last() broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

func TestProcessUploadPipeline(t *testing.T) {
	broadcaster := &captureBroadcaster{}
	svc := NewDatasetService(time.Hour, testLogger(), nil, broadcaster)

	data := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 14:30:00"),
		movementRow("ATO-1", "3", "02/08/2025 09:00:00"),
		movementRow("ATO-1", "x", "02/08/2025 10:00:00"),
	})

	ds, err := svc.ProcessUpload(context.Background(), "sess-1", Upload{
		Kind:     dataprocessing.KindSaida,
		Filename: "saida.xlsx",
		Data:     data,
	})
	require.NoError(t, err)

	assert.Equal(t, dataprocessing.KindSaida, ds.Kind)
	assert.Equal(t, 2, ds.Report.ParsedRows)
	assert.Equal(t, 1, ds.Report.DroppedBadQuantity)
	for _, rec := range ds.Table {
		assert.LessOrEqual(t, rec.Quantity, 0.0)
		assert.Equal(t, dataprocessing.KindSaida, rec.Kind)
	}

	assert.Contains(t, broadcaster.types(), "dataset:loaded")
}

func TestProcessUploadBroadcastCarriesParseReport(t *testing.T) {
	broadcaster := &captureBroadcaster{}
	svc := NewDatasetService(time.Hour, testLogger(), nil, broadcaster)

	data := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 14:30:00"),
		movementRow("ATO-1", "x", "01/08/2025 15:00:00"),
		movementRow("ATO-1", "2", "nonsense"),
	})

	_, err := svc.ProcessUpload(context.Background(), "sess-1", Upload{
		Kind:     dataprocessing.KindEntrada,
		Filename: "entrada.xlsx",
		Data:     data,
	})
	require.NoError(t, err)

	event := broadcaster.last()
	assert.Equal(t, "dataset:loaded", event.msgType)

	payload, ok := event.payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "entrada.xlsx", payload["filename"])
	assert.Equal(t, 1, payload["records"])

	report, ok := payload["report"].(dataprocessing.ParseReport)
	require.True(t, ok)
	assert.Equal(t, 3, report.TotalRows)
	assert.Equal(t, 1, report.DroppedBadQuantity)
	assert.Equal(t, 1, report.DroppedBadTimestamp)
}

func TestProcessUploadMissingColumns(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)

	f := excelize.NewFile()
	header := []interface{}{"Linha ATO", "Data Movimento"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	row := []interface{}{"ATO-1", "01/08/2025 14:30:00"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &row))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	f.Close()

	_, err = svc.ProcessUpload(context.Background(), "sess-1", Upload{
		Kind: dataprocessing.KindEntrada,
		Data: buf.Bytes(),
	})

	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "MISSING_COLUMNS", apiErr.ErrorCode)
}

func TestProcessUploadUnreadableFile(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)

	_, err := svc.ProcessUpload(context.Background(), "sess-1", Upload{
		Kind: dataprocessing.KindEntrada,
		Data: []byte("not a spreadsheet"),
	})

	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNREADABLE_FILE", apiErr.ErrorCode)
}

func TestProcessUploadEmptyDataset(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)

	data := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "bad", "nonsense"),
	})

	_, err := svc.ProcessUpload(context.Background(), "sess-1", Upload{
		Kind: dataprocessing.KindEntrada,
		Data: data,
	})

	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "EMPTY_DATASET", apiErr.ErrorCode)
}

func TestProcessUploadsConcurrent(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)

	entrada := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 10:00:00"),
	})
	saida := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "2", "01/08/2025 12:00:00"),
	})

	results, err := svc.ProcessUploads(context.Background(), "sess-1", []Upload{
		{Kind: dataprocessing.KindEntrada, Filename: "e.xlsx", Data: entrada},
		{Kind: dataprocessing.KindSaida, Filename: "s.xlsx", Data: saida},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, dataprocessing.KindEntrada, results[0].Kind)
	assert.Equal(t, dataprocessing.KindSaida, results[1].Kind)

	status, err := svc.Status("sess-1")
	require.NoError(t, err)
	assert.Len(t, status, 2)
}

func TestProcessUploadsRejectsBatchOnFailure(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)

	good := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 10:00:00"),
	})

	_, err := svc.ProcessUploads(context.Background(), "sess-1", []Upload{
		{Kind: dataprocessing.KindEntrada, Filename: "good.xlsx", Data: good},
		{Kind: dataprocessing.KindSaida, Filename: "bad.xlsx", Data: []byte("garbage")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.xlsx")
}

func TestCombinedAppliesFilters(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)
	ctx := context.Background()

	entrada := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 10:00:00"),
		movementRow("ATO-2", "7", "05/08/2025 10:00:00"),
	})
	saida := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "2", "02/08/2025 12:00:00"),
	})

	_, err := svc.ProcessUpload(ctx, "sess-1", Upload{Kind: dataprocessing.KindEntrada, Data: entrada})
	require.NoError(t, err)
	_, err = svc.ProcessUpload(ctx, "sess-1", Upload{Kind: dataprocessing.KindSaida, Data: saida})
	require.NoError(t, err)

	all, err := svc.Combined("sess-1", Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyATO1, err := svc.Combined("sess-1", Filter{Projects: []string{"ATO-1"}})
	require.NoError(t, err)
	assert.Len(t, onlyATO1, 2)

	ranged, err := svc.Combined("sess-1", Filter{
		From: time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, dataprocessing.KindSaida, ranged[0].Kind)
}

func TestMetricsHeadlineNumbers(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)
	ctx := context.Background()

	entrada := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 10:00:00"),
		movementRow("ATO-2", "7", "03/08/2025 10:00:00"),
	})
	saida := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "2", "02/08/2025 12:00:00"),
	})

	_, err := svc.ProcessUpload(ctx, "sess-1", Upload{Kind: dataprocessing.KindEntrada, Data: entrada})
	require.NoError(t, err)
	_, err = svc.ProcessUpload(ctx, "sess-1", Upload{Kind: dataprocessing.KindSaida, Data: saida})
	require.NoError(t, err)

	m, err := svc.Metrics("sess-1", Filter{})
	require.NoError(t, err)

	assert.Equal(t, 3, m.Records)
	assert.Equal(t, []string{"ATO-1", "ATO-2"}, m.ProjectLines)
	assert.Equal(t, 12.0, m.TotalEntrada)
	assert.Equal(t, 2.0, m.TotalSaida)
	assert.Equal(t, 3, m.PeriodDays)

	_, err = svc.Metrics("missing", Filter{})
	assert.Error(t, err)
}

func TestGetAndDrop(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)
	ctx := context.Background()

	_, err := svc.Get("unknown", dataprocessing.KindEntrada)
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "DATASET_NOT_FOUND", apiErr.ErrorCode)

	data := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 10:00:00"),
	})
	_, err = svc.ProcessUpload(ctx, "sess-1", Upload{Kind: dataprocessing.KindEntrada, Data: data})
	require.NoError(t, err)

	ds, err := svc.Get("sess-1", dataprocessing.KindEntrada)
	require.NoError(t, err)
	assert.Len(t, ds.Table, 1)

	_, err = svc.Get("sess-1", dataprocessing.KindSaida)
	assert.Error(t, err)

	require.NoError(t, svc.Drop("sess-1"))
	assert.Equal(t, 0, svc.SessionCount())
	assert.Error(t, svc.Drop("sess-1"))
}

func TestJanitorSweepsIdleSessions(t *testing.T) {
	svc := NewDatasetService(10*time.Millisecond, testLogger(), nil, nil)
	ctx := context.Background()

	data := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 10:00:00"),
	})
	_, err := svc.ProcessUpload(ctx, "sess-1", Upload{Kind: dataprocessing.KindEntrada, Data: data})
	require.NoError(t, err)
	require.Equal(t, 1, svc.SessionCount())

	time.Sleep(20 * time.Millisecond)
	svc.sweep()

	assert.Equal(t, 0, svc.SessionCount())
}

func TestStatusReportsBothKinds(t *testing.T) {
	svc := NewDatasetService(time.Hour, testLogger(), nil, nil)
	ctx := context.Background()

	entrada := buildMovementFile(t, [][]interface{}{
		movementRow("ATO-1", "5", "01/08/2025 10:00:00"),
		movementRow("ATO-2", "2", "03/08/2025 10:00:00"),
	})
	_, err := svc.ProcessUpload(ctx, "sess-1", Upload{
		Kind: dataprocessing.KindEntrada, Filename: "e.xlsx", Data: entrada,
	})
	require.NoError(t, err)

	status, err := svc.Status("sess-1")
	require.NoError(t, err)
	require.Len(t, status, 1)

	st := status[0]
	assert.Equal(t, dataprocessing.KindEntrada, st.Kind)
	assert.Equal(t, "e.xlsx", st.Filename)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, []string{"ATO-1", "ATO-2"}, st.Projects)
	assert.True(t, st.FirstDate.Before(st.LastDate))
}
