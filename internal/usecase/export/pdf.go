package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"chess_review/internal/domain"
)

// ReportPDF renders a finished (or partial) accuracy report as a printable
// A4 document: a header with the players and their accuracy scores, then a
// move table with per-ply evaluations and judgments.
func ReportPDF(report *domain.AccuracyReport, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	title := report.Event
	if title == "" {
		title = "Game analysis"
	}
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("%s - %s  (%s)", report.White, report.Black, report.Result))
	pdf.Ln(7)
	pdf.Cell(0, 6, fmt.Sprintf("Accuracy: White %.1f, Black %.1f", report.WhiteAccuracy, report.BlackAccuracy))
	pdf.Ln(7)
	if !report.Complete {
		pdf.Cell(0, 6, fmt.Sprintf("Partial report: %d of %d moves analyzed", report.Analyzed(), len(report.Plies)))
		pdf.Ln(7)
	}
	pdf.Ln(4)

	pdf.SetFont("Courier", "B", 9)
	pdf.Cell(12, 5, "#")
	pdf.Cell(24, 5, "Move")
	pdf.Cell(24, 5, "Eval")
	pdf.Cell(30, 5, "Judgment")
	pdf.Cell(0, 5, "Best line")
	pdf.Ln(6)

	pdf.SetFont("Courier", "", 9)
	for _, ply := range report.Plies {
		pdf.Cell(12, 4.5, moveNumber(ply.Ply))
		pdf.Cell(24, 4.5, ply.SAN)
		switch ply.Status {
		case domain.PlyAnalyzed:
			pdf.Cell(24, 4.5, ply.After.Score.String())
			pdf.Cell(30, 4.5, string(ply.Judgment))
			pdf.Cell(0, 4.5, bestLine(ply.Before))
		case domain.PlyFailed:
			pdf.Cell(24, 4.5, "-")
			pdf.Cell(30, 4.5, "failed")
		default:
			pdf.Cell(24, 4.5, "-")
			pdf.Cell(30, 4.5, "pending")
		}
		pdf.Ln(5)
	}

	return pdf.Output(w)
}

// moveNumber formats a ply in game-score style: "12." for White's move,
// "12..." for Black's.
func moveNumber(p domain.Ply) string {
	n := (p.Index + 1) / 2
	if p.Side == domain.Black {
		return fmt.Sprintf("%d...", n)
	}
	return fmt.Sprintf("%d.", n)
}

// bestLine shows the engine's recommendation with up to five plies of its
// principal variation.
func bestLine(ev *domain.Evaluation) string {
	if ev == nil || ev.BestMove == "" {
		return ""
	}
	moves := strings.Fields(ev.PV)
	if len(moves) == 0 || moves[0] != ev.BestMove {
		moves = append([]string{ev.BestMove}, moves...)
	}
	if len(moves) > 6 {
		moves = moves[:6]
	}
	return strings.Join(moves, " ")
}
