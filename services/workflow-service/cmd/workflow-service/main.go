package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bookwell-app/bookwell/libs/config"
	"github.com/bookwell-app/bookwell/libs/db"
	"github.com/bookwell-app/bookwell/libs/httpx"
	"github.com/bookwell-app/bookwell/libs/kafkax"
	otelx "github.com/bookwell-app/bookwell/libs/otel"
	"github.com/bookwell-app/bookwell/libs/runtime"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/consumer"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/email"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/handlers"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/inbox"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/outbox"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/scheduler"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/storage"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/webhook"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/workflow"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "workflow-service")
	port, err := config.Port("PORT", "8084")
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

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)
	inboxRepo := inbox.NewRepository(pool)

	var emailSender email.Sender
	if host := strings.TrimSpace(config.String("SMTP_HOST", "")); host != "" {
		emailSender = email.NewSMTPSender(host, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
		logger.Info("smtp sender enabled", "host", host)
	} else {
		emailSender = email.NoopSender{}
		logger.Warn("smtp host missing, emails are dropped")
	}
	webhookSender := webhook.NewHTTPSender()

	exec := workflow.NewExecutor(repo, emailSender, webhookSender, logger)
	sweeper := scheduler.NewSweeper(repo, exec, logger, scheduler.SweeperConfig{
		Tolerance: config.Seconds("SWEEP_TOLERANCE_SECONDS", 15*time.Minute),
		Lookback:  config.Seconds("SWEEP_LOOKBACK_SECONDS", 2*time.Hour),
	})
	sweepWorker := scheduler.NewWorker(sweeper, logger, config.Seconds("SWEEP_INTERVAL_SECONDS", 5*time.Minute))
	go sweepWorker.Run(ctx)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	// One consumer per lifecycle topic; each event maps to its trigger and
	// runs through the executor.
	handleEvent := func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)
		trigger, ok := model.TriggerForEvent(meta.EventType)
		if !ok {
			logger.Warn("no trigger for event", "event_type", meta.EventType)
			return nil
		}
		var payload struct {
			BookingID string `json:"booking_id"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil || payload.BookingID == "" {
			logger.Error("invalid booking event payload", "err", err, "topic", msg.Topic)
			return nil
		}

		res, err := exec.ExecuteForTrigger(ctx, trigger, payload.BookingID)
		if err != nil {
			logger.Error("workflow execution failed", "err", err, "booking_id", payload.BookingID, "trigger", trigger)
			return nil
		}
		if res.Executed > 0 || res.Failed > 0 {
			logger.Info("workflows executed", "booking_id", payload.BookingID, "trigger", trigger,
				"executed", res.Executed, "failed", res.Failed)
		}
		return nil
	}

	topics := strings.Split(config.String("KAFKA_CONSUME_TOPICS",
		"booking.created.v1,booking.confirmed.v1,booking.cancelled.v1,booking.completed.v1,booking.no_show.v1"), ",")
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "workflow-service"),
			Topic:   topic,
		}, handleEvent)
		go eventConsumer.Run(ctx)
	}

	workflowHandler := handlers.NewWorkflowHandler(repo, exec, sweeper, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/workflows", workflowHandler.List)
	mux.HandleFunc("/api/v1/workflows/create", workflowHandler.Create)
	mux.HandleFunc("/api/v1/workflows/activate", workflowHandler.SetActive)
	mux.HandleFunc("/api/v1/workflows/trigger", workflowHandler.Trigger)
	mux.HandleFunc("/api/v1/workflows/sweep", workflowHandler.Sweep)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "workflow")
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
