package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/warrenbeats/backend/docs"
	"github.com/warrenbeats/backend/internal/assets"
	"github.com/warrenbeats/backend/internal/config"
	"github.com/warrenbeats/backend/internal/database"
	"github.com/warrenbeats/backend/internal/handlers"
	mW "github.com/warrenbeats/backend/internal/middleware"
	"github.com/warrenbeats/backend/internal/services"
)

// @title Warren Pro Beats API
// @version 1.0
// @description Marketplace backend for purchasing and downloading beats
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("gateway.secret_key", "GATEWAY_SECRET_KEY")

	viper.BindEnv("assets.backend", "ASSET_BACKEND")
	viper.BindEnv("assets.dir", "ASSET_DIR")
	viper.BindEnv("assets.s3_bucket", "ASSET_S3_BUCKET")
	viper.BindEnv("assets.s3_region", "ASSET_S3_REGION")
	viper.BindEnv("assets.s3_endpoint", "ASSET_S3_ENDPOINT")
	viper.BindEnv("assets.s3_prefix", "ASSET_S3_PREFIX")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"

	// Initialize backends
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	defer redisClient.Close()

	store := initAssetStore()

	checkoutCfg := config.LoadCheckoutConfig()

	// Initialize services
	inventoryService := services.NewInventoryService(db, checkoutCfg)
	ledgerService := services.NewLedgerService(db, inventoryService)
	downloadService := services.NewDownloadService(db, store)
	paymentService := services.NewPaymentService(redisClient, inventoryService, ledgerService, checkoutCfg)
	catalogService := services.NewCatalogService(db)

	catalogHandler := handlers.NewCatalogHandler(catalogService)
	checkoutHandler := handlers.NewCheckoutHandler(paymentService, downloadService, catalogService, checkoutCfg)
	revenueHandler := handlers.NewRevenueHandler(ledgerService)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for album covers
	r.Handle("/static/covers/*", http.StripPrefix("/static/covers/",
		mW.StaticFileServer("./static/covers")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Get("/beats", catalogHandler.ListBeats)
		r.Get("/albums/{albumID}", catalogHandler.AlbumDetail)
		r.Post("/beats/{beatID}/favorite", catalogHandler.FavoriteBeat)
		r.Post("/albums/{albumID}/favorite", catalogHandler.FavoriteAlbum)

		// The gateway redirects the user agent here; no bearer token on
		// this hop, the session token is the credential.
		r.Get("/payment/callback", checkoutHandler.PaymentCallback)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/beats/{beatID}/purchase", checkoutHandler.Purchase)
			r.Get("/beats/{beatID}/download", checkoutHandler.Download)
			r.Get("/downloads", checkoutHandler.DownloadHistory)
			r.Post("/beats/{beatID}/rating", catalogHandler.RateBeat)

			r.Get("/revenue/stats", revenueHandler.Stats)
			r.Get("/revenue/daily", revenueHandler.Daily)
			r.Post("/revenue/report", revenueHandler.GenerateReport)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

func initAssetStore() assets.Store {
	viper.SetDefault("assets.backend", "local")
	viper.SetDefault("assets.dir", "./media/beats")

	if viper.GetString("assets.backend") == "s3" {
		store, err := assets.NewS3Store(context.Background(), assets.S3StoreConfig{
			Bucket:   viper.GetString("assets.s3_bucket"),
			Region:   viper.GetString("assets.s3_region"),
			Endpoint: viper.GetString("assets.s3_endpoint"),
			Prefix:   viper.GetString("assets.s3_prefix"),
		})
		if err != nil {
			log.Fatalf("Failed to initialize S3 asset store: %v", err)
		}
		log.Println("S3 asset store initialized")
		return store
	}

	log.Println("Local asset store initialized")
	return assets.NewLocalStore(viper.GetString("assets.dir"))
}
