// Package analysis coordinates the per-game evaluation pipeline: for every
// ply it requests the before/after engine verdicts through the cache,
// classifies the move, and folds the swings into per-player accuracy.
package analysis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"chess_review/internal/domain"
	errs "chess_review/internal/errors"
	"chess_review/internal/repository"
)

// Evaluator produces a position verdict at a budget. *repository.EngineSession
// satisfies it; tests substitute stubs.
type Evaluator interface {
	Evaluate(ctx context.Context, pos domain.Position, budget domain.Budget) (domain.Evaluation, error)
}

type Config struct {
	Classifier ClassifierConfig
	Accuracy   AccuracyConfig
}

func DefaultConfig() Config {
	return Config{
		Classifier: DefaultClassifierConfig(),
		Accuracy:   DefaultAccuracyConfig(),
	}
}

// Analyzer runs the pipeline for one game at a time against one engine
// session. Re-analyzing at a larger budget only re-evaluates positions whose
// cached budget is insufficient.
type Analyzer struct {
	log    *zap.SugaredLogger
	engine Evaluator
	cache  *repository.EvalCache
	cfg    Config
	onPly  func(domain.AnalyzedPly)
}

func NewAnalyzer(log *zap.SugaredLogger, engine Evaluator, cache *repository.EvalCache, cfg Config) *Analyzer {
	return &Analyzer{
		log:    log,
		engine: engine,
		cache:  cache,
		cfg:    cfg,
	}
}

// OnPly registers a hook invoked after each ply finishes (analyzed or
// failed). Used for live progress streaming.
func (a *Analyzer) OnPly(fn func(domain.AnalyzedPly)) {
	a.onPly = fn
}

// Analyze walks the game's plies in order and builds the accuracy report.
// Cancellation is cooperative at ply boundaries: the in-flight evaluation
// finishes, the remainder is marked pending, and no error is returned (the
// caller asked for the partial report). An exhausted engine also preserves
// the partial report but surfaces ErrEngineUnavailable.
func (a *Analyzer) Analyze(ctx context.Context, id string, game *domain.Game, budget domain.Budget) (*domain.AccuracyReport, error) {
	report := &domain.AccuracyReport{
		ID:        id,
		Event:     game.Event,
		White:     game.White,
		Black:     game.Black,
		Result:    game.Result,
		Plies:     make([]domain.AnalyzedPly, 0, len(game.Plies)),
		Budget:    budget,
		CreatedAt: time.Now().UTC(),
	}

	agg := NewAggregator(a.cfg.Accuracy)

	var fatal error
	canceled := false

	for _, ply := range game.Plies {
		if fatal != nil || canceled {
			report.Plies = append(report.Plies, domain.AnalyzedPly{Ply: ply, Status: domain.PlyPending})
			continue
		}
		if ctx.Err() != nil {
			canceled = true
			report.Plies = append(report.Plies, domain.AnalyzedPly{Ply: ply, Status: domain.PlyPending})
			continue
		}

		ap := a.analyzePly(ctx, game, ply, budget, agg)
		switch {
		case errors.Is(ap.err, errs.ErrEngineUnavailable):
			fatal = ap.err
			report.Plies = append(report.Plies, domain.AnalyzedPly{Ply: ply, Status: domain.PlyPending})
			continue
		case ap.err != nil && ctx.Err() != nil:
			canceled = true
			report.Plies = append(report.Plies, domain.AnalyzedPly{Ply: ply, Status: domain.PlyPending})
			continue
		}

		report.Plies = append(report.Plies, ap.AnalyzedPly)
		if a.onPly != nil {
			a.onPly(ap.AnalyzedPly)
		}
	}

	report.WhiteAccuracy = agg.Score(domain.White)
	report.BlackAccuracy = agg.Score(domain.Black)
	report.Complete = report.Analyzed() == len(game.Plies)

	if fatal != nil {
		a.log.Errorw("analysis aborted", "id", id, "analyzed", report.Analyzed(), "error", fatal)
	}
	return report, fatal
}

type plyResult struct {
	domain.AnalyzedPly
	err error
}

func (a *Analyzer) analyzePly(ctx context.Context, game *domain.Game, ply domain.Ply, budget domain.Budget, agg *Aggregator) plyResult {
	before, err := a.evaluatePosition(ctx, game.Before(ply), budget)
	if err == nil {
		var after domain.Evaluation
		after, err = a.evaluateAfter(ctx, game, ply, budget)
		if err == nil {
			judgment, loss := a.cfg.Classifier.Classify(before, after, ply.Side, ply.UCI)
			agg.Add(ply.Side, loss)
			return plyResult{AnalyzedPly: domain.AnalyzedPly{
				Ply:         ply,
				Status:      domain.PlyAnalyzed,
				Before:      &before,
				After:       &after,
				Judgment:    judgment,
				WinProbLoss: loss,
			}}
		}
	}

	if errors.Is(err, errs.ErrEngineUnavailable) || ctx.Err() != nil {
		return plyResult{err: err}
	}

	// Transient fault on this ply only (the session already retried once
	// internally); record the failure and keep going.
	a.log.Errorw("ply evaluation failed", "ply", ply.Index, "san", ply.SAN, "error", err)
	return plyResult{
		AnalyzedPly: domain.AnalyzedPly{Ply: ply, Status: domain.PlyFailed},
		err:         err,
	}
}

// evaluateAfter short-circuits terminal positions: a mate or stalemate on
// the board needs no search.
func (a *Analyzer) evaluateAfter(ctx context.Context, game *domain.Game, ply domain.Ply, budget domain.Budget) (domain.Evaluation, error) {
	switch {
	case ply.Checkmate:
		return domain.Evaluation{Score: matedScore(ply.Side), Budget: budget}, nil
	case ply.Stalemate:
		return domain.Evaluation{Score: domain.Centipawns(0), Budget: budget}, nil
	default:
		return a.evaluatePosition(ctx, game.After(ply), budget)
	}
}

func (a *Analyzer) evaluatePosition(ctx context.Context, pos domain.Position, budget domain.Budget) (domain.Evaluation, error) {
	if ev, ok := a.cache.Get(ctx, pos, budget); ok {
		return ev, nil
	}
	ev, err := a.engine.Evaluate(ctx, pos, budget)
	if err != nil {
		return domain.Evaluation{}, err
	}
	a.cache.Put(ctx, pos, ev)
	return ev, nil
}

// matedScore values a delivered checkmate for the side that gave it. The
// mate is on the board; distance one is used so shorter announced mates
// never outrank it by more than the board can show.
func matedScore(winner domain.Color) domain.Score {
	return domain.MateIn(1).POV(winner)
}
