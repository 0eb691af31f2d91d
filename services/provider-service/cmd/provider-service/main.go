package main

import (
	"context"
	"net/http"
	"time"

	"github.com/bookwell-app/bookwell/libs/config"
	"github.com/bookwell-app/bookwell/libs/db"
	"github.com/bookwell-app/bookwell/libs/httpx"
	otelx "github.com/bookwell-app/bookwell/libs/otel"
	"github.com/bookwell-app/bookwell/libs/runtime"
	"github.com/bookwell-app/bookwell/services/provider-service/internal/handlers"
	"github.com/bookwell-app/bookwell/services/provider-service/internal/storage"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "provider-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	handler := handlers.New(repo)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.HandleFunc("/api/v1/provider/profile", profileRouter(handler))
	mux.HandleFunc("/api/v1/provider/services", serviceRouter(handler))
	mux.HandleFunc("/api/v1/provider/services/assign-staff", handler.AssignStaff)
	mux.HandleFunc("/api/v1/provider/staff", staffRouter(handler))
	mux.HandleFunc("/api/v1/provider/staff/activate", handler.SetStaffActive)
	mux.HandleFunc("/api/v1/provider/hours", hoursRouter(handler))
	mux.HandleFunc("/api/v1/provider/blocks", blockRouter(handler))
	mux.HandleFunc("/api/v1/provider/cancellation-policy", policyRouter(handler))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "provider")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func profileRouter(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetProfile(w, r)
		default:
			h.UpdateProfile(w, r)
		}
	}
}

func serviceRouter(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListServices(w, r)
		default:
			h.CreateService(w, r)
		}
	}
}

func staffRouter(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListStaff(w, r)
		default:
			h.CreateStaff(w, r)
		}
	}
}

func hoursRouter(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListHours(w, r)
		default:
			h.UpsertHours(w, r)
		}
	}
}

func blockRouter(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListBlocks(w, r)
		case http.MethodDelete:
			h.DeleteBlock(w, r)
		default:
			h.CreateBlock(w, r)
		}
	}
}

func policyRouter(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetCancellationPolicy(w, r)
		default:
			h.UpsertCancellationPolicy(w, r)
		}
	}
}
