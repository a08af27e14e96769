package analysis

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chess_review/internal/bootstrap"
	"chess_review/internal/domain"
	errs "chess_review/internal/errors"
	"chess_review/internal/httpresponse"
	"chess_review/internal/repository"
	analysisuc "chess_review/internal/usecase/analysis"
	"chess_review/internal/usecase/export"
	"chess_review/internal/usecase/replay"
	"chess_review/internal/utils"
)

// EngineSession is the per-job engine surface. *repository.EngineSession
// satisfies it; tests substitute stubs.
type EngineSession interface {
	analysisuc.Evaluator
	Start(ctx context.Context) error
	Stop()
}

type AnalysisHandler struct {
	cfg       bootstrap.Config
	log       *zap.SugaredLogger
	newEngine func() EngineSession
	cache     *repository.EvalCache
	reports   *repository.ReportRepository
}

// NewAnalysisHandler wires the handler. newEngine is called once per
// analysis job: every job owns its worker process, so jobs run in parallel
// and one job's engine trouble never degrades another's session.
func NewAnalysisHandler(cfg bootstrap.Config, log *zap.SugaredLogger, newEngine func() EngineSession, cache *repository.EvalCache, reports *repository.ReportRepository) *AnalysisHandler {
	return &AnalysisHandler{
		cfg:       cfg,
		log:       log,
		newEngine: newEngine,
		cache:     cache,
		reports:   reports,
	}
}

type AnalyzeRequest struct {
	ID         string   `json:"id,omitempty"`
	PGN        string   `json:"pgn,omitempty"`
	Moves      []string `json:"moves,omitempty"`
	Depth      int      `json:"depth,omitempty"`
	MovetimeMs int      `json:"movetime_ms,omitempty"`
}

type AnalyzeResponse struct {
	ID    string `json:"id"`
	Plies int    `json:"plies"`
}

type JobStatusResponse struct {
	ID       string               `json:"id"`
	Status   string               `json:"status"`
	Analyzed int                  `json:"analyzed"`
	Total    int                  `json:"total"`
	Plies    []domain.AnalyzedPly `json:"plies,omitempty"`
}

type CancelRequest struct {
	ReportID string `json:"report_id"`
}

// HandleAnalyze accepts a game as PGN or a SAN move list, starts the
// analysis in the background and returns the job id. Sending a known id
// re-analyzes the game; the cache makes that cheap unless the budget grew.
func (h *AnalysisHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.log.Error("Only POST method is allowed")
		httpresponse.WriteResponseWithStatus(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	var req AnalyzeRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Error("JSON decode error:", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	game, err := h.replayRequest(req.PGN, req.Moves)
	if err != nil {
		h.log.Error("replay error:", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	budget := domain.Budget{Depth: h.cfg.EngineDepth, MovetimeMs: h.cfg.EngineMovetimeMs}
	if req.Depth > 0 {
		budget.Depth = req.Depth
	}
	if req.MovetimeMs > 0 {
		budget.MovetimeMs = req.MovetimeMs
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	job := newJob(id, len(game.Plies))
	registerJob(job)

	go h.runJob(job, game, budget)

	h.log.Infow("analysis started", "id", id, "plies", len(game.Plies), "depth", budget.Depth)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, AnalyzeResponse{ID: id, Plies: len(game.Plies)})
}

// HandleGame replays a game without engine analysis: the move list with
// SAN, UCI and the FEN after every ply. The PGN comes from the `pgn` query
// parameter or a JSON body.
func (h *AnalysisHandler) HandleGame(w http.ResponseWriter, r *http.Request) {
	req := AnalyzeRequest{PGN: r.URL.Query().Get("pgn")}
	if req.PGN == "" {
		if err := utils.DecodeJSONRequest(r, &req); err != nil {
			h.log.Error("JSON decode error:", err)
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	game, err := h.replayRequest(req.PGN, req.Moves)
	if err != nil {
		h.log.Error("replay error:", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	httpresponse.WriteResponseWithStatus(w, http.StatusOK, game)
}

func (h *AnalysisHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, "missing id")
		return
	}

	if job, ok := lookupJob(id); ok {
		report, running := job.snapshot()
		if running {
			status := JobStatusResponse{ID: id, Status: "running", Total: job.total}
			status.Plies = job.pliesSoFar()
			for _, p := range status.Plies {
				if p.Status == domain.PlyAnalyzed {
					status.Analyzed++
				}
			}
			httpresponse.WriteResponseWithStatus(w, http.StatusOK, status)
			return
		}
		if report != nil {
			httpresponse.WriteResponseWithStatus(w, http.StatusOK, report)
			return
		}
	}

	report, err := h.reports.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrReportNotFound) {
			httpresponse.WriteResponseWithStatus(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error(err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, report)
}

func (h *AnalysisHandler) HandleReportPDF(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, "missing id")
		return
	}

	report, err := h.findReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrReportNotFound) {
			httpresponse.WriteResponseWithStatus(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error(err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}

	var buf bytes.Buffer
	if err := export.ReportPDF(report, &buf); err != nil {
		h.log.Error("pdf render error:", err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\"analysis-"+id+".pdf\"")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.log.Error("pdf write error:", err)
	}
}

// HandleCancel requests cooperative cancellation: the in-flight ply
// finishes and the partial report is published as usual.
func (h *AnalysisHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.log.Error("Only POST method is allowed")
		httpresponse.WriteResponseWithStatus(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		var req CancelRequest
		if err := utils.DecodeJSONRequest(r, &req); err != nil {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, err.Error())
			return
		}
		id = req.ReportID
	}
	if id == "" {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, "missing report_id")
		return
	}

	job, ok := lookupJob(id)
	if !ok {
		httpresponse.WriteResponseWithStatus(w, http.StatusNotFound, errs.ErrJobNotFound.Error())
		return
	}

	job.cancel()
	h.log.Infow("analysis cancel requested", "id", id)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, JobStatusResponse{
		ID:       id,
		Status:   "canceling",
		Analyzed: job.analyzed(),
		Total:    job.total,
	})
}

// runJob owns the job lifecycle: it spawns the job's engine session, drives
// the analyzer, persists the report and notifies progress subscribers. The
// session lives exactly as long as the job, so concurrent jobs each search
// on their own worker process.
func (h *AnalysisHandler) runJob(job *analysisJob, game *domain.Game, budget domain.Budget) {
	engine := h.newEngine()
	if err := engine.Start(job.ctx); err != nil {
		h.log.Errorw("engine start failed", "id", job.id, "error", err)
		job.finish(nil, err)
		h.scheduleEviction(job)
		return
	}
	defer engine.Stop()

	cfg := analysisuc.DefaultConfig()
	if h.cfg.AccuracyDecay > 0 {
		cfg.Accuracy.Decay = h.cfg.AccuracyDecay
	}

	analyzer := analysisuc.NewAnalyzer(h.log, engine, h.cache, cfg)
	analyzer.OnPly(job.publish)

	report, err := analyzer.Analyze(job.ctx, job.id, game, budget)
	if err != nil {
		h.log.Errorw("analysis failed", "id", job.id, "error", err)
	}

	if report != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if saveErr := h.reports.Save(saveCtx, report); saveErr != nil {
			h.log.Errorw("report save failed", "id", job.id, "error", saveErr)
		}
		cancel()
	}

	job.finish(report, err)
	h.scheduleEviction(job)
	h.log.Infow("analysis finished", "id", job.id, "complete", report != nil && report.Complete)
}

func (h *AnalysisHandler) replayRequest(pgn string, moves []string) (*domain.Game, error) {
	switch {
	case pgn != "":
		return replay.FromPGN(pgn)
	case len(moves) > 0:
		return replay.FromMoves(moves)
	default:
		return nil, errs.ErrEmptyGame
	}
}

// findReport prefers the in-memory job over the store so a just-finished
// analysis is readable before Mongo catches up (or without Mongo at all).
func (h *AnalysisHandler) findReport(ctx context.Context, id string) (*domain.AccuracyReport, error) {
	if job, ok := lookupJob(id); ok {
		if report, running := job.snapshot(); !running && report != nil {
			return report, nil
		}
	}
	return h.reports.GetByID(ctx, id)
}

var activeJobs = make(map[string]*analysisJob)
var activeJobsMu sync.RWMutex

// finishedJobTTL keeps a finished job readable in memory for late /report
// and /progress calls; after that only the persisted report remains.
var finishedJobTTL = 15 * time.Minute

func registerJob(job *analysisJob) {
	activeJobsMu.Lock()
	if old, ok := activeJobs[job.id]; ok {
		old.cancel()
	}
	activeJobs[job.id] = job
	activeJobsMu.Unlock()
}

func (h *AnalysisHandler) scheduleEviction(job *analysisJob) {
	time.AfterFunc(finishedJobTTL, func() { dropJob(job) })
}

// dropJob removes the job unless a re-analysis already replaced it under
// the same id.
func dropJob(job *analysisJob) {
	activeJobsMu.Lock()
	if activeJobs[job.id] == job {
		delete(activeJobs, job.id)
	}
	activeJobsMu.Unlock()
}

func lookupJob(id string) (*analysisJob, bool) {
	activeJobsMu.RLock()
	job, ok := activeJobs[id]
	activeJobsMu.RUnlock()
	return job, ok
}
