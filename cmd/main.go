package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"chess_review/internal/adapters"
	"chess_review/internal/bootstrap"
	analysisDelivery "chess_review/internal/delivery/analysis"
	ownMiddleware "chess_review/internal/middleware"
	"chess_review/internal/repository"
)

type mainDeliveryHandler struct {
	analysis *analysisDelivery.AnalysisHandler
}

func main() {
	logger := NewLogger()
	cfg, err := bootstrap.Setup(".env")
	if err != nil {
		logger.Error("Failed to setup configuration", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	redisAdapter, mongoAdapter := initDatabaseAdapters(ctx, logger, cfg)
	if mongoAdapter != nil {
		defer mongoAdapter.Close(ctx)
	}
	if redisAdapter != nil {
		defer redisAdapter.Close(ctx)
	}

	r := chi.NewRouter()
	handlers := initializeDeliveryHandlers(*cfg, logger, redisAdapter, mongoAdapter)
	handlers.Router(r, cfg.IsLocalCors)

	port := cfg.ServerPort
	if port == "" {
		port = ":8080"
	}
	logger.Infof("Server is running on port %s", port)
	if err := http.ListenAndServe(port, r); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func NewLogger() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger.Sugar()
}

func (h *mainDeliveryHandler) Router(r *chi.Mux, isLocalCors bool) {
	if isLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(middleware.Logger)

	r.Post("/analyze", h.analysis.HandleAnalyze)
	r.Get("/game", h.analysis.HandleGame)
	r.Get("/report", h.analysis.HandleReport)
	r.Get("/report/pdf", h.analysis.HandleReportPDF)
	r.Post("/cancel", h.analysis.HandleCancel)
	r.Get("/progress", h.analysis.HandleProgress)
}

// initDatabaseAdapters connects the optional stores. An empty URL disables
// the adapter; the server runs fine on the in-memory cache alone.
func initDatabaseAdapters(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config) (*adapters.AdapterRedis, *adapters.AdapterMongo) {
	var redisAdapter *adapters.AdapterRedis
	if cfg.RedisUrl != "" {
		redisAdapter = adapters.NewAdapterRedis(cfg)
		if err := redisAdapter.Init(ctx); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		log.Info("Redis eval cache enabled")
	}

	var mongoAdapter *adapters.AdapterMongo
	if cfg.MongoUri != "" {
		mongoAdapter = adapters.NewAdapterMongo(cfg)
		if err := mongoAdapter.Init(ctx); err != nil {
			log.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		log.Info("Mongo report store enabled")
	}

	return redisAdapter, mongoAdapter
}

func initializeDeliveryHandlers(
	cfg bootstrap.Config,
	log *zap.SugaredLogger,
	redisAdapter *adapters.AdapterRedis,
	mongoAdapter *adapters.AdapterMongo,
) *mainDeliveryHandler {
	var redisClient *redis.Client
	if redisAdapter != nil {
		redisClient = redisAdapter.GetClient()
	}
	var mongoDB *mongo.Database
	if mongoAdapter != nil {
		mongoDB = mongoAdapter.Database
	}

	cache := repository.NewEvalCache(log, redisClient)
	reports := repository.NewReportRepository(log, mongoDB)

	// Each analysis job gets its own engine process.
	newEngine := func() analysisDelivery.EngineSession {
		return repository.NewEngineSession(repository.EngineConfig{
			Path:       cfg.EnginePath,
			SkillLevel: cfg.EngineSkillLevel,
			Threads:    cfg.EngineThreads,
			HashSizeMb: cfg.EngineHashSizeMb,
			Timeout:    time.Duration(cfg.EngineTimeoutMs) * time.Millisecond,
		}, log)
	}

	return &mainDeliveryHandler{
		analysis: analysisDelivery.NewAnalysisHandler(cfg, log, newEngine, cache, reports),
	}
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
	time.Sleep(1 * time.Second) // let the engine and sockets close
}
