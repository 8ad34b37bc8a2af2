package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"echoheritage/config"
	"echoheritage/core/audio"
	"echoheritage/core/feed"
	"echoheritage/core/fusion"
	"echoheritage/core/validate"
	"echoheritage/db"
	"echoheritage/logger"
	"echoheritage/mailer"
	"echoheritage/model"
	"echoheritage/repository"
	"echoheritage/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// summarySources adapts the two track repositories to the pipeline's summary
// lookup: a matched fingerprint resolves against heritage tracks or saved
// fusions depending on its source kind.
type summarySources struct {
	tracks repository.TrackRepository
	fused  repository.FusedTrackRepository
}

func (s summarySources) HeritageSummary(ctx context.Context, soundID string) (*model.TrackSummary, error) {
	return s.tracks.SummaryBySoundID(ctx, soundID)
}

func (s summarySources) FusionSummary(ctx context.Context, soundID string) (*model.TrackSummary, error) {
	return s.fused.SummaryBySoundID(ctx, soundID)
}

// Start initializes every backend dependency and runs the HTTP server until
// interrupted.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))),
		OutputPath: os.Getenv("LOG_FILE"),
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.FingerprintRecord{}, &model.SystemControls{}); err != nil {
		logger.Fatal("failed to migrate models", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	trackRepo := repository.NewMySQLTrackRepository()
	userRepo := repository.NewMySQLUserRepository(db.DB)
	fusedRepo := repository.NewMySQLFusedTrackRepository(db.DB)
	modernRepo := repository.NewMySQLModernTrackRepository(db.DB)
	fingerprintRepo := repository.NewGormFingerprintRepository(db.GormDB)
	controlsRepo := repository.NewGormControlsRepository(db.GormDB)

	analyzer := audio.NewAnalyzer(cfg.FFmpegPath, cfg.FFprobePath)
	fpcalc := audio.NewFpcalc(cfg.FpcalcPath)
	pipeline := &validate.Pipeline{
		Metrics:   analyzer,
		Prints:    fpcalc,
		Config:    &validate.DBThresholdSource{Controls: controlsRepo},
		Corpus:    fingerprintRepo,
		Summaries: summarySources{tracks: trackRepo, fused: fusedRepo},
		Lock:      db.NewRedisLocker(db.RedisClient),
	}

	var mail mailer.Mailer = mailer.NopMailer{}
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(cfg)
	} else {
		logger.Warn("SMTP not configured, outbound mail disabled")
	}

	blobs := storage.NewMinioStore(cfg.MinioBucket)
	fusionCli := fusion.NewClient(cfg.FusionEngineURLs)
	hub := feed.NewHub()

	api := NewAPIHandler(trackRepo, userRepo, fingerprintRepo, controlsRepo,
		fusedRepo, modernRepo, pipeline, fpcalc, blobs, mail, fusionCli, hub, cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Auth
	router.HandleFunc("/api/auth/signup", api.SignupHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", api.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/activate", api.ActivateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/forgot-password", api.ForgotPasswordHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/reset-password", api.ResetPasswordHandler).Methods(http.MethodPost)

	// Users
	router.HandleFunc("/api/users", api.AuthMiddleware(api.RequireRole(api.ListUsersHandler, model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{id}/role", api.AuthMiddleware(api.RequireRole(api.UpdateRoleHandler, model.RoleSuperAdmin))).Methods(http.MethodPut)

	// Heritage tracks
	router.HandleFunc("/api/tracks/identify", api.AuthMiddleware(api.IdentifyTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks", api.AuthMiddleware(api.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks", api.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", api.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", api.AuthMiddleware(api.UpdateTrackHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/tracks/{id}", api.AuthMiddleware(api.RequireRole(api.DeleteTrackHandler, model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodDelete)
	router.HandleFunc("/api/tracks/{id}/approve", api.AuthMiddleware(api.RequireRole(api.SetApprovalHandler(true), model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodPatch)
	router.HandleFunc("/api/tracks/{id}/unapprove", api.AuthMiddleware(api.RequireRole(api.SetApprovalHandler(false), model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodPatch)

	// System controls and pricing
	router.HandleFunc("/api/admin/controls", api.GetControlsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/controls", api.AuthMiddleware(api.RequireRole(api.UpdateControlsHandler, model.RoleSuperAdmin))).Methods(http.MethodPost)
	router.HandleFunc("/api/payment/pricing", api.GetPricingHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/payment/pricing/update", api.AuthMiddleware(api.RequireRole(api.UpdatePricingHandler, model.RoleSuperAdmin))).Methods(http.MethodPut)

	// Fusion
	router.HandleFunc("/api/fusion/process", api.AuthMiddleware(api.ProcessFusionHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/fusion/engines-health", api.EnginesHealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/fusion/save", api.AuthMiddleware(api.SaveFusionHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/fusion/history", api.AuthMiddleware(api.FusionHistoryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/fusion/check", api.AuthMiddleware(api.CheckFusionHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/fusion/{id}", api.AuthMiddleware(api.RequireRole(api.DeleteFusionHandler, model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodDelete)

	// Modern style tracks
	router.HandleFunc("/api/modern", api.GetModernTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/modern", api.AuthMiddleware(api.RequireRole(api.CreateModernTrackHandler, model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodPost)
	router.HandleFunc("/api/modern/{id}", api.AuthMiddleware(api.RequireRole(api.UpdateModernTrackHandler, model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodPut)
	router.HandleFunc("/api/modern/{id}/approve", api.AuthMiddleware(api.RequireRole(api.SetModernApprovalHandler(true), model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodPatch)
	router.HandleFunc("/api/modern/{id}/unapprove", api.AuthMiddleware(api.RequireRole(api.SetModernApprovalHandler(false), model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodPatch)
	router.HandleFunc("/api/modern/{id}", api.AuthMiddleware(api.RequireRole(api.DeleteModernTrackHandler, model.RoleAdmin, model.RoleSuperAdmin))).Methods(http.MethodDelete)

	// Moderation feed
	router.HandleFunc("/ws/feed", api.FeedHandler)

	// MinIO-backed static serving for audio and album art
	router.PathPrefix("/static/").HandlerFunc(serveStatic(cfg))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func serveStatic(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/static/")
		client := storage.GetMinioClient()
		if client == nil {
			http.Error(w, "storage not available", http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		object, err := client.GetObject(ctx, cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
		if err != nil {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		var contentType string
		switch {
		case strings.HasSuffix(objectPath, ".mp3"):
			contentType = "audio/mpeg"
		case strings.HasSuffix(objectPath, ".wav"):
			contentType = "audio/wav"
		case strings.HasSuffix(objectPath, ".jpg"), strings.HasSuffix(objectPath, ".jpeg"):
			contentType = "image/jpeg"
		case strings.HasSuffix(objectPath, ".png"):
			contentType = "image/png"
		default:
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000")

		if _, err := io.Copy(w, object); err != nil {
			logger.Warn("failed to serve object", logger.String("object", objectPath), logger.ErrorField(err))
		}
	}
}
