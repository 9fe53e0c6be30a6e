package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hacknation/tagscan/service-gateway/internal/handlers"
	"github.com/hacknation/tagscan/service-gateway/internal/metrics"
	"github.com/hacknation/tagscan/service-gateway/internal/services"
	"github.com/hacknation/tagscan/service-gateway/internal/storage"
)

func main() {
	// Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	config := loadConfig()
	zerolog.SetGlobalLevel(parseLogLevel(config.LogLevel))

	log.Info().
		Str("host", config.Host).
		Str("port", config.Port).
		Str("provider", config.ModelProvider).
		Str("store", config.StoreBackend).
		Msg("Starting tag scan gateway")

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().Msg("Initializing item store...")
	itemStore, closeStore, err := newItemStore(config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize item store")
	}
	defer closeStore()
	log.Info().Str("collection", storage.ItemsCollection).Msg("Item store initialized")

	log.Info().Msg("Initializing model gateway...")
	gateway, err := newModelGateway(config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize model gateway")
	}
	if err := gateway.HealthCheck(ctx); err != nil {
		log.Warn().Err(err).Msg("Model gateway not ready - analysis requests will fail")
	}
	log.Info().Str("model", gateway.Name()).Msg("Model gateway initialized")

	// Interfaces stay nil unless the integration is configured.
	var images services.ImageArchive
	if config.MinIOEndpoint != "" {
		log.Info().Msg("Initializing MinIO storage...")
		minioStorage, err := storage.NewMinIOStorage(
			config.MinIOEndpoint,
			config.MinIOPublicEndpoint,
			config.MinIOAccessKey,
			config.MinIOSecretKey,
			config.MinIOBucket,
			config.MinIOUseSSL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MinIO storage")
		}
		images = minioStorage
	} else {
		log.Warn().Msg("MINIO_ENDPOINT not set - tag images will not be archived")
	}

	var events services.ItemEventPublisher
	if config.RabbitMQURL != "" {
		log.Info().Msg("Initializing RabbitMQ publisher...")
		publisher, err := services.NewRabbitMQPublisher(config.RabbitMQURL, config.RabbitMQExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize RabbitMQ publisher")
		}
		defer publisher.Close()
		events = publisher

		log.Info().Msg("Initializing RabbitMQ consumer...")
		consumer, err := services.NewRabbitMQConsumer(config.RabbitMQURL, config.RabbitMQExchange, itemStore)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize RabbitMQ consumer")
		}
		defer consumer.Close()

		if err := consumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start RabbitMQ consumer")
		}
	} else {
		log.Warn().Msg("RABBITMQ_URL not set - item events disabled")
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	pipeline := services.NewSustainabilityPipeline(gateway, itemStore, images, events, rng, config.ModelTimeout)

	handler := handlers.NewHandler(pipeline, itemStore, images, events, gateway)
	router := setupRouter(handler, config.CORSAllowedOrigin)

	// Both model calls must fit in the write timeout.
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*config.ModelTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", srv.Addr).
			Msg("Server starting...")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

// newItemStore picks the backend named by STORE_BACKEND
func newItemStore(config *Config) (storage.ItemStore, func(), error) {
	switch config.StoreBackend {
	case "memory":
		log.Warn().Msg("Using in-memory item store - data is lost on restart")
		return storage.NewMemoryStore(), func() {}, nil
	case "postgres", "":
		store, err := storage.NewPostgresStorage(
			config.DBHost,
			config.DBPort,
			config.DBUser,
			config.DBPassword,
			config.DBName,
			config.DBSSLMode,
		)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Postgres connection")
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", config.StoreBackend)
}

// newModelGateway picks the provider named by MODEL_PROVIDER
func newModelGateway(config *Config) (services.ModelGateway, error) {
	switch config.ModelProvider {
	case "gemini", "":
		return services.NewGeminiGateway(config.GeminiAPIKey, config.GeminiAPIEndpoint, config.GeminiModel), nil
	case "openai":
		return services.NewOpenAIGateway(config.OpenAIAPIKey, config.OpenAIAPIEndpoint, config.OpenAIModel), nil
	}
	return nil, fmt.Errorf("unknown model provider %q", config.ModelProvider)
}

// setupRouter configures all routes and middleware
func setupRouter(h *handlers.Handler, allowedOrigin string) *mux.Router {
	r := mux.NewRouter()

	// Middleware
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)
	r.Use(mux.CORSMethodMiddleware(r))
	r.Use(corsMiddleware(allowedOrigin))

	r.HandleFunc("/", h.RootHandler).Methods("GET", "OPTIONS")
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET", "OPTIONS")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET", "OPTIONS")

	// Analysis
	r.HandleFunc("/analyze_image", h.AnalyzeImageHandler).Methods("POST", "OPTIONS")
	r.HandleFunc("/analyze_sustainability", h.AnalyzeSustainabilityHandler).Methods("POST", "OPTIONS")

	// Items
	r.HandleFunc("/items", h.CreateItemHandler).Methods("POST", "OPTIONS")
	r.HandleFunc("/items", h.ListItemsHandler).Methods("GET")
	r.HandleFunc("/items/{id}", h.GetItemHandler).Methods("GET", "OPTIONS")
	r.HandleFunc("/items/{id}", h.UpdateItemHandler).Methods("PUT")
	r.HandleFunc("/items/{id}", h.DeleteItemHandler).Methods("DELETE")
	r.HandleFunc("/item_stats", h.ItemStatsHandler).Methods("GET", "OPTIONS")

	log.Info().Msg("Routes configured successfully")
	return r
}

// corsMiddleware sets the allowed origin and answers preflight requests.
// Allowed methods come from mux.CORSMethodMiddleware.
func corsMiddleware(allowedOrigin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration_ms", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"Internal Server Error"}`))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
