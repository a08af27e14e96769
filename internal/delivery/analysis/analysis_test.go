package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chess_review/internal/bootstrap"
	"chess_review/internal/domain"
	"chess_review/internal/httpresponse"
	"chess_review/internal/repository"
)

type stubEngine struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
}

func (s *stubEngine) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *stubEngine) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *stubEngine) Evaluate(_ context.Context, _ domain.Position, budget domain.Budget) (domain.Evaluation, error) {
	return domain.Evaluation{Score: domain.Centipawns(15), BestMove: "e2e4", Budget: budget}, nil
}

func (s *stubEngine) lifecycle() (started, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.stopped
}

// engineFarm hands out one stub session per job and remembers them all.
type engineFarm struct {
	mu       sync.Mutex
	sessions []*stubEngine
}

func (f *engineFarm) new() EngineSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &stubEngine{}
	f.sessions = append(f.sessions, s)
	return s
}

func (f *engineFarm) spawned() []*stubEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*stubEngine(nil), f.sessions...)
}

func newTestHandler(t *testing.T) (*AnalysisHandler, *engineFarm) {
	t.Helper()
	log := zap.NewNop().Sugar()
	cfg := bootstrap.Config{EngineDepth: 10}
	cache := repository.NewEvalCache(log, nil)
	reports := repository.NewReportRepository(log, nil)
	farm := &engineFarm{}
	return NewAnalysisHandler(cfg, log, farm.new, cache, reports), farm
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope httpresponse.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	inner, err := json.Marshal(envelope.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(inner, dst))
}

func TestHandleGameReplaysWithoutEngine(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/game", strings.NewReader(`{"pgn": "1. e4 e5 *"}`))
	rec := httptest.NewRecorder()
	h.HandleGame(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var game domain.Game
	decodeBody(t, rec, &game)
	assert.Len(t, game.Plies, 2)
	assert.Len(t, game.Positions, 3)
}

func TestHandleGameRejectsIllegalPGN(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/game", strings.NewReader(`{"pgn": "1. e5 *"}`))
	rec := httptest.NewRecorder()
	h.HandleGame(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnalyzeThenReport(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"pgn": "1. e4 e5 *", "depth": 8}`))
	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var started AnalyzeResponse
	decodeBody(t, rec, &started)
	require.NotEmpty(t, started.ID)
	assert.Equal(t, 2, started.Plies)

	var report domain.AccuracyReport
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		h.HandleReport(rec, httptest.NewRequest(http.MethodGet, "/report?id="+started.ID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		decodeBody(t, rec, &report)
		return report.Complete
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, started.ID, report.ID)
	assert.Len(t, report.Plies, 2)
	assert.Equal(t, 2, report.Analyzed())
}

func TestHandleReportUnknownID(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HandleReport(rec, httptest.NewRequest(http.MethodGet, "/report?id=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelUnknownID(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HandleCancel(rec, httptest.NewRequest(http.MethodPost, "/cancel?id=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReportPDF(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"pgn": "1. e4 *", "id": "pdf-job"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		job, ok := lookupJob("pdf-job")
		if !ok {
			return false
		}
		_, running := job.snapshot()
		return !running
	}, 2*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	h.HandleReportPDF(rec, httptest.NewRequest(http.MethodGet, "/report/pdf?id=pdf-job", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func waitForJob(t *testing.T, id string) *analysisJob {
	t.Helper()
	var job *analysisJob
	require.Eventually(t, func() bool {
		j, ok := lookupJob(id)
		if !ok {
			return false
		}
		if _, running := j.snapshot(); running {
			return false
		}
		job = j
		return true
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestEachJobGetsItsOwnEngineSession(t *testing.T) {
	h, farm := newTestHandler(t)

	for _, id := range []string{"farm-a", "farm-b"} {
		rec := httptest.NewRecorder()
		body := `{"pgn": "1. e4 e5 *", "id": "` + id + `"}`
		h.HandleAnalyze(rec, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	waitForJob(t, "farm-a")
	waitForJob(t, "farm-b")

	sessions := farm.spawned()
	require.Len(t, sessions, 2, "one engine session per job")
	for _, s := range sessions {
		started, stopped := s.lifecycle()
		assert.True(t, started, "session started for its job")
		assert.True(t, stopped, "session stopped when the job finished")
	}
}

func TestEngineStartFailureFailsTheJob(t *testing.T) {
	log := zap.NewNop().Sugar()
	wantErr := errors.New("no such engine binary")
	newEngine := func() EngineSession { return &stubEngine{startErr: wantErr} }
	h := NewAnalysisHandler(bootstrap.Config{EngineDepth: 10}, log,
		newEngine, repository.NewEvalCache(log, nil), repository.NewReportRepository(log, nil))

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"pgn": "1. e4 *", "id": "dead-engine"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	job := waitForJob(t, "dead-engine")
	report, err := job.result()
	assert.Nil(t, report)
	assert.ErrorIs(t, err, wantErr)
}

func TestFinishedJobsAreEvicted(t *testing.T) {
	oldTTL := finishedJobTTL
	finishedJobTTL = 20 * time.Millisecond
	defer func() { finishedJobTTL = oldTTL }()

	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"pgn": "1. e4 *", "id": "short-lived"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	waitForJob(t, "short-lived")

	require.Eventually(t, func() bool {
		_, ok := lookupJob("short-lived")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDropJobKeepsReplacementUnderSameID(t *testing.T) {
	first := newJob("dup", 0)
	registerJob(first)
	second := newJob("dup", 0)
	registerJob(second)
	defer dropJob(second)

	dropJob(first)

	got, ok := lookupJob("dup")
	require.True(t, ok, "the re-analysis job survives the old job's eviction")
	assert.Same(t, second, got)
}
