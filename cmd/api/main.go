package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cityflow/neurotraff/classifier"
	"cityflow/neurotraff/config"
	"cityflow/neurotraff/handlers"
	"cityflow/neurotraff/metrics"
	"cityflow/neurotraff/middleware"
	"cityflow/neurotraff/provider"
	"cityflow/neurotraff/roads"
	"cityflow/neurotraff/services"
	"cityflow/neurotraff/store"
	"cityflow/neurotraff/tracing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracing, err := tracing.Init(ctx, "cityflow-api")
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer shutdownTracing()

	catalog, err := roads.LoadFile(cfg.Provider.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load road catalog: %v", err)
	}

	scorer, err := loadScorer(cfg.Artifacts)
	if err != nil {
		log.Fatalf("Failed to load model artifacts: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get sql db handle: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("redis unavailable, running without cache and live feed: %v", err)
	}
	defer cache.Close()

	client := provider.NewClient(provider.Options{
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      cfg.Provider.APIKey,
		Timeout:     cfg.Provider.Timeout,
		Retries:     cfg.Provider.Retries,
		Parallelism: cfg.Provider.Parallelism,
	})

	authService := services.NewAuthService(cfg.JWT, cfg.Operator)
	verdicts := services.NewVerdictService(catalog, client, scorer, cache, services.VerdictOptions{
		Window:       services.NewAccessWindow(cfg.Window),
		AllowPartial: cfg.Serving.AllowPartial,
		CacheTTL:     cfg.Serving.CacheTTL,
	})

	go metrics.Serve(cfg.Server.MetricsAddr)

	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "UP",
			"model_loaded": scorer != nil,
			"redis":        cache.Available(),
		})
	})

	router.GET("/roads", handlers.NewRoadsHandler(catalog).GetRoads)
	router.POST("/selected_road", handlers.NewVerdictHandler(verdicts).SelectedRoad)
	router.POST("/auth/login", handlers.NewAuthHandler(authService).Login)
	router.GET("/ws/verdicts", handlers.VerdictWebSocket(cache, authService))

	private := router.Group("/", middleware.RequireAuth(authService))
	private.GET("/samples", handlers.NewSamplesHandler(store.NewHistoryStore(db), cache).GetSamples)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// loadScorer loads the pipeline and classifier artifacts. Unless they are
// required, a missing or mismatched pair yields a nil scorer and verdicts
// answer model_unavailable.
func loadScorer(cfg config.ArtifactsConfig) (services.Scorer, error) {
	bundle, err := classifier.LoadBundle(cfg.PipelinePath, cfg.ClassifierPath)
	if err != nil {
		if cfg.Required {
			return nil, err
		}
		log.Printf("model artifacts not loaded, verdicts disabled: %v", err)
		return nil, nil
	}
	log.Printf("model artifacts loaded: fingerprint=%s", bundle.Fingerprint())
	return bundle, nil
}
