package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"chess_review/internal/domain"
	"chess_review/internal/repository"
	"chess_review/internal/usecase/analysis"
	"chess_review/internal/usecase/export"
	"chess_review/internal/usecase/replay"
)

// Batch analyzer: replays a PGN file, runs it through the engine and prints
// the report as JSON, optionally also rendering a PDF.
func main() {
	enginePath := flag.String("engine", "stockfish", "path to the UCI engine binary")
	depth := flag.Int("depth", 18, "search depth per position")
	movetime := flag.Int("movetime", 0, "per-position movetime in ms (0 = depth only)")
	pdfOut := flag.String("pdf", "", "also write the report as a PDF to this path")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: analyze [flags] game.pgn")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	log := logger.Sugar()

	if err := run(log, flag.Arg(0), *enginePath, *depth, *movetime, *pdfOut); err != nil {
		log.Fatal(err)
	}
}

func run(log *zap.SugaredLogger, pgnPath, enginePath string, depth, movetime int, pdfOut string) error {
	pgn, err := os.ReadFile(pgnPath)
	if err != nil {
		return err
	}

	game, err := replay.FromPGN(string(pgn))
	if err != nil {
		return fmt.Errorf("replay %s: %w", pgnPath, err)
	}

	engine := repository.NewEngineSession(repository.EngineConfig{Path: enginePath}, log)
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	cache := repository.NewEvalCache(log, nil)
	analyzer := analysis.NewAnalyzer(log, engine, cache, analysis.DefaultConfig())
	analyzer.OnPly(func(p domain.AnalyzedPly) {
		log.Infof("%3d. %-8s %s", p.Index, p.SAN, p.Judgment)
	})

	start := time.Now()
	report, err := analyzer.Analyze(ctx, pgnPath, game, domain.Budget{Depth: depth, MovetimeMs: movetime})
	if err != nil {
		return err
	}
	log.Infof("analyzed %d plies in %s", report.Analyzed(), time.Since(start).Round(time.Millisecond))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if pdfOut != "" {
		f, err := os.Create(pdfOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := export.ReportPDF(report, f); err != nil {
			return err
		}
		log.Infof("wrote %s", pdfOut)
	}

	return nil
}
