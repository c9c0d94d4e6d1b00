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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/payops/apsgw/aps"
	"github.com/payops/apsgw/handler"
	"github.com/payops/apsgw/infra/config"
	"github.com/payops/apsgw/infra/logger"
	"github.com/payops/apsgw/infra/opensearch"
	"github.com/payops/apsgw/infra/response"
	"github.com/payops/apsgw/infra/storage"
	"github.com/payops/apsgw/router"
)

var (
	PORT       string
	logSink    *opensearch.Client
	gatewayLog *logger.Logger
)

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Load Env: %v", err)
	}

	PORT = config.GetEnv("APP_PORT", "9999")

	// Initialize OpenSearch client and log sink
	cfg := config.GetAppConfig()
	apsCfg := config.LoadAPSConfig()
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			logSink = osClient
			gatewayLog = logger.New(osClient, apsCfg.DebugMode)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}
}

func main() {
	apsCfg := config.LoadAPSConfig()
	if err := apsCfg.Validate(); err != nil {
		log.Fatalf("Invalid gateway configuration: %v", err)
	}

	if gatewayLog == nil {
		gatewayLog = logger.New(nil, apsCfg.DebugMode)
	}

	store, err := storage.NewSQLiteStore(config.GetEnv("SQLITE_DB_PATH", "./data/apsgw.db"))
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	service := aps.NewService(
		apsCfg,
		store,
		store,
		store,
		aps.SignerFromConfig(apsCfg),
		aps.NewClient(&aps.ClientConfig{
			WalletCertificatePath: apsCfg.WalletCertificatePath,
			WalletCertificateKey:  apsCfg.WalletCertificateKey,
		}),
		gatewayLog,
	)

	paymentHandler := handler.NewPaymentHandler(service, store, apsCfg, config.Validator())
	healthHandler := handler.NewHealthHandler(store, apsCfg)

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With", "X-Session-Id"},
		ExposedHeaders:   []string{"Link", "Content-Length", "Access-Control-Allow-Origin"},
		AllowCredentials: true,
		MaxAge:           300, // Preflight cache time (second)
	}))

	// Health check endpoint (no auth required)
	r.Get("/health", healthHandler.CheckHealth)

	router.Routes(r, paymentHandler)

	// Not Found
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusNotFound, response.Response{Success: false, Message: "Not Found"})
	})

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Retention sweep for expired gateway log indices
	appCfg := config.GetAppConfig()
	if logSink != nil && appCfg.LogRetentionDays > 0 {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
					if err := logSink.DeleteExpiredIndices(sweepCtx); err != nil {
						log.Printf("Log retention sweep failed: %v", err)
					}
					cancel()
				}
			}
		}()
	}

	// Run your HTTP server in a goroutine
	go func() {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%s", PORT),
			Handler:           r,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 60 * time.Second,
		}
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err.Error())
		}
	}()

	log.Println("API is running on", PORT)

	// Block until a signal is received
	<-ctx.Done()

	log.Println("API is shutting on", PORT)
	log.Println("Shutting down gracefully...")
}
