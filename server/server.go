package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Tunedrop/backend"
	"Tunedrop/config"
	"Tunedrop/core/audio"
	"Tunedrop/core/gotrue"
	"Tunedrop/db"
	"Tunedrop/logger"
	"Tunedrop/repository"
	"Tunedrop/storage"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

// NewRouter mounts every route on a gorilla/mux router and wraps it in a
// permissive CORS policy.
func NewRouter(h *APIHandler) http.Handler {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	router.HandleFunc("/", h.RootHandler).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	users := router.PathPrefix("/users").Subrouter()
	users.HandleFunc("/signup", h.SignupHandler).Methods(http.MethodPost)
	users.HandleFunc("/login", h.LoginHandler).Methods(http.MethodPost)
	users.HandleFunc("/otp/verify", h.VerifyOTPHandler).Methods(http.MethodPost)
	users.HandleFunc("/users/refresh", h.RefreshHandler).Methods(http.MethodPost)

	tracks := router.PathPrefix("/tracks").Subrouter()
	tracks.Use(h.AuthMiddleware)
	tracks.HandleFunc("/search", h.SearchHandler).Methods(http.MethodPost)
	tracks.HandleFunc("/upload/details", h.UploadDetailsHandler).Methods(http.MethodPost)
	tracks.HandleFunc("/upload/audio", h.UploadAudioHandler).Methods(http.MethodPost)
	tracks.HandleFunc("/upload/cover", h.UploadCoverHandler).Methods(http.MethodPost)
	tracks.HandleFunc("/upload/finalize", h.FinalizeHandler).Methods(http.MethodPost)
	tracks.HandleFunc("/{trackId}/audio", h.GetTrackAudioHandler).Methods(http.MethodGet)
	tracks.HandleFunc("/{trackId}", h.GetTrackHandler).Methods(http.MethodGet)

	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodPatch},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	})(router)
}

// Start connects every collaborator, serves the API and shuts down
// gracefully on SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	gormDB, err := db.ConnectGormDB(pool)
	if err != nil {
		return err
	}

	objects, err := storage.NewObjectStore(storage.Options{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Region:    cfg.StorageRegion,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		return err
	}
	if err := objects.EnsureBuckets(ctx, cfg.AudioBucket, cfg.CoverBucket); err != nil {
		return err
	}

	b := backend.New(
		gotrue.NewClient(cfg.AuthURL(), cfg.SupabaseKey, nil),
		repository.NewPostgresTrackRepository(pool),
		repository.NewGormProfileRepository(gormDB),
		objects,
		audio.NewFFprobe(cfg.FFprobePath),
		backend.Options{
			AudioBucket:            cfg.AudioBucket,
			CoverBucket:            cfg.CoverBucket,
			RequireMediaOnFinalize: cfg.RequireMediaOnFinalize,
		},
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(NewAPIHandler(b, cfg)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("[Server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("[Server] stopped")
	return nil
}
