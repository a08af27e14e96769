package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"chess_review/internal/domain"
	errs "chess_review/internal/errors"
)

const reportCollection = "reports"

// ReportRepository persists finished accuracy reports. The mongo database is
// optional; with a nil database every call is a no-op or a not-found.
type ReportRepository struct {
	log   *zap.SugaredLogger
	mongo *mongo.Database
}

func NewReportRepository(log *zap.SugaredLogger, db *mongo.Database) *ReportRepository {
	return &ReportRepository{
		log:   log,
		mongo: db,
	}
}

// Save upserts the report by ID; a re-analysis at a deeper budget replaces
// the stored report wholesale.
func (r *ReportRepository) Save(ctx context.Context, report *domain.AccuracyReport) error {
	if r.mongo == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collection := r.mongo.Collection(reportCollection)
	filter := bson.M{"_id": report.ID}
	opts := options.Replace().SetUpsert(true)

	if _, err := collection.ReplaceOne(ctx, filter, report, opts); err != nil {
		r.log.Errorw("failed to save report", "id", report.ID, "error", err)
		return fmt.Errorf("save report: %w", err)
	}

	r.log.Infow("report saved", "id", report.ID, "plies", len(report.Plies), "complete", report.Complete)
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.AccuracyReport, error) {
	if r.mongo == nil {
		return nil, errs.ErrReportNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collection := r.mongo.Collection(reportCollection)

	var report domain.AccuracyReport
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	return &report, nil
}
