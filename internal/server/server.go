package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"paperbase/internal/adapters"
	"paperbase/internal/backup"
	"paperbase/internal/config"
	"paperbase/internal/db"
	"paperbase/internal/dedup"
	"paperbase/internal/embedding"
	"paperbase/internal/filesec"
	"paperbase/internal/handlers"
	"paperbase/internal/jobs"
	"paperbase/internal/metrics"
	"paperbase/internal/pdf"
	"paperbase/internal/pipeline"
	"paperbase/internal/repositories"
	"paperbase/internal/routes"
)

// Server wires the whole ingestion core together and owns its lifecycle.
type Server struct {
	cfg    config.Config
	http   *http.Server
	sqlite *db.SQLiteDB
	chroma *db.ChromaDBClient
	redis  *db.RedisClient
	engine *jobs.Engine
	backup *backup.Manager

	cancelBackground context.CancelFunc
}

// New builds the server: stores, repositories, adapters, pipeline, engine,
// and HTTP surface.
func New(cfg config.Config) (*Server, error) {
	for _, dir := range []string{cfg.Storage.DataDir, cfg.Storage.PDFDir, cfg.Storage.ImageDir,
		cfg.Storage.TempDir, cfg.Storage.BackupDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	sqlite, err := db.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	chroma := db.NewChromaDBClient(db.ChromaDBConfig{
		Host:     cfg.Chroma.Host,
		Port:     cfg.Chroma.Port,
		Tenant:   cfg.Chroma.Tenant,
		Database: cfg.Chroma.Database,
		Timeout:  cfg.Chroma.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	vectors, err := repositories.NewChromaVectorRepository(ctx, chroma)
	if err != nil {
		sqlite.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	// Redis is optional: without it the job mirror and rate limiter are off.
	var redisClient *db.RedisClient
	if rc, err := db.NewRedisClient(cfg.Redis); err != nil {
		log.Warn().Err(err).Msg("redis unavailable; job mirror and rate limiting disabled")
	} else {
		redisClient = rc
	}

	papers := repositories.NewSQLitePaperRepository(sqlite)
	jobRepo := repositories.NewSQLiteJobRepository(sqlite)
	backupRepo := repositories.NewSQLiteBackupRepository(sqlite)

	var mirror *repositories.RedisJobMirror
	var limiter *filesec.RateLimiter
	if redisClient != nil {
		mirror = repositories.NewRedisJobMirror(redisClient, 24*time.Hour)
		limiter = filesec.NewRateLimiter(redisClient, cfg.Rate)
	}

	registry := adapters.NewRegistry(cfg.Circuit)

	var embedder embedding.Embedder
	if cfg.Embedding.Remote && cfg.Adapters.Embedder.URL != "" {
		embedder = adapters.NewRemoteEmbedder(cfg.Adapters.Embedder, cfg.Retry,
			registry.Breaker(adapters.ServiceEmbedder), cfg.Embedding.ModelName, cfg.Embedding.Dim)
	} else {
		embedder = embedding.NewLocalEmbedder(cfg.Embedding.ModelName, cfg.Embedding.Dim)
	}

	dedupEngine := dedup.NewEngine(papers, vectors, cfg.Dedup.L3Threshold)
	validator := filesec.NewValidator(cfg.Upload, cfg.Storage.QuarantineDir)
	extractor := pdf.NewExtractor()

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Validator: validator,
		Extractor: extractor,
		OCR:       adapters.NewOCRClient(cfg.Adapters.OCR, cfg.Retry),
		Quality:   adapters.NewQualityClient(cfg.Adapters.Quality, cfg.Retry, registry.Breaker(adapters.ServiceQuality)),
		Layout:    adapters.NewLayoutClient(cfg.Adapters.Layout, cfg.Retry, registry.Breaker(adapters.ServiceLayout)),
		Metadata:  pipeline.NewMetadataExtractor(adapters.NewLLMClient(cfg.Adapters.LLM, cfg.Retry, registry.Breaker(adapters.ServiceLLM))),
		Embedder:  embedder,
		Dedup:     dedupEngine,
		Papers:    papers,
		Vectors:   vectors,
		Storage:   cfg.Storage,
	})

	tracker := metrics.NewTracker(cfg.Storage.DataDir)
	engine := jobs.NewEngine(cfg.Engine, jobRepo, mirror, orchestrator, tracker)
	metrics.RegisterQueueGauges(
		func() float64 { return float64(engine.Stats().Depth) },
		func() float64 { return float64(engine.Stats().ActiveJobs) },
	)

	manager := backup.NewManager(sqlite, backupRepo, cfg.Backup, cfg.Storage.BackupDir, cfg.Storage.ChromaDataDir)
	manager.PauseIngestion = engine.Pause
	manager.ResumeIngestion = engine.Resume
	checker := backup.NewChecker(sqlite, papers, vectors)

	router := mux.NewRouter()
	routes.Setup(router, routes.Handlers{
		Upload: handlers.NewUploadHandler(engine, limiter, cfg.Upload, cfg.Storage.TempDir),
		Job:    handlers.NewJobHandler(engine),
		Paper:  handlers.NewPaperHandler(papers, vectors, cfg.Storage),
		Search: handlers.NewSearchHandler(papers, vectors),
		Admin:  handlers.NewAdminHandler(manager, checker, backupRepo, cfg.Server.AdminToken),
		Status: handlers.NewStatusHandler(sqlite, chroma, redisClient, registry, engine, tracker),
	})

	srv := &Server{
		cfg:    cfg,
		sqlite: sqlite,
		chroma: chroma,
		redis:  redisClient,
		engine: engine,
		backup: manager,
		http: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  5 * time.Minute,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	srv.cancelBackground = bgCancel
	go tracker.RunSampler(bgCtx)
	go manager.RunScheduler(bgCtx)
	go srv.vectorSyncLoop(bgCtx, papers, checker)
	go srv.tempJanitor(bgCtx)

	return srv, nil
}

// Start launches the job engine and serves HTTP until shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("start job engine: %w", err)
	}

	log.Info().Str("addr", s.cfg.Server.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops HTTP intake, drains workers, and closes the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down")
	err := s.http.Shutdown(ctx)

	s.engine.Stop()
	s.cancelBackground()

	if s.redis != nil {
		s.redis.Close()
	}
	s.chroma.Close()
	if closeErr := s.sqlite.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// tempJanitor removes uploads stranded in the temp dir, typically left by
// a crash between upload and pipeline cleanup.
func (s *Server) tempJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := os.ReadDir(s.cfg.Storage.TempDir)
			if err != nil {
				continue
			}
			cutoff := time.Now().Add(-24 * time.Hour)
			removed := 0
			for _, entry := range entries {
				info, err := entry.Info()
				if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
					continue
				}
				if os.Remove(filepath.Join(s.cfg.Storage.TempDir, entry.Name())) == nil {
					removed++
				}
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("stale temp uploads removed")
			}
		}
	}
}

// vectorSyncLoop periodically re-pushes papers left with the
// pending_vector_sync marker by a failed vector write.
func (s *Server) vectorSyncLoop(ctx context.Context, papers repositories.PaperRepository, checker *backup.Checker) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := papers.ListPendingVectorSync(ctx)
			if err != nil {
				log.Error().Err(err).Msg("pending sync listing failed")
				continue
			}
			for _, id := range ids {
				if err := checker.Resync(ctx, id); err != nil {
					log.Warn().Err(err).Str("doc_id", id).Msg("vector resync failed")
				}
			}
		}
	}
}
