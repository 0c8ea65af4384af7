package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"carebridge/backend/internal/auth"
	"carebridge/backend/internal/config"
	"carebridge/backend/internal/notify"
	"carebridge/backend/internal/observability/metrics"
	"carebridge/backend/internal/service/appointments"
	"carebridge/backend/internal/service/consultations"
	"carebridge/backend/internal/store"
	"carebridge/backend/internal/store/memory"
	"carebridge/backend/internal/store/postgres"
	grpcTransport "carebridge/backend/internal/transport/grpc"
	"carebridge/backend/internal/transport/httpops"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC API and the ops HTTP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), *cfg, slog.Default())
		},
	}
}

type stores struct {
	appointments  store.AppointmentRepository
	consultations store.ConsultationRepository
	directory     store.Directory
	pinger        httpops.Pinger
	close         func()
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedulingMetrics := metrics.NewSchedulingMetrics(reg)
	notifyMetrics := metrics.NewNotifyMetrics(reg)

	st, err := openStores(ctx, cfg, schedulingMetrics, log)
	if err != nil {
		return err
	}
	defer st.close()

	resolver, err := newResolver(cfg, log)
	if err != nil {
		return err
	}

	sender, err := newEmailSender(ctx, cfg, log)
	if err != nil {
		return err
	}
	renderer, err := notify.NewRenderer()
	if err != nil {
		return err
	}
	courier := notify.NewCourier(renderer, sender, notifyMetrics, log)

	g, gctx := errgroup.WithContext(ctx)

	var outbound notify.Deliverer = courier
	if cfg.NotifyQueue == config.NotifyQueueRedis {
		client := redis.NewClient(&redis.Options{
			Addr:                  cfg.RedisAddr,
			Password:              cfg.RedisPassword,
			DialTimeout:           2 * time.Second,
			ReadTimeout:           2 * time.Second,
			WriteTimeout:          2 * time.Second,
			ContextTimeoutEnabled: true,
		})
		defer func() { _ = client.Close() }()
		outbound = notify.NewRedisQueue(client, cfg.RedisStream, log)
		consumer := notify.NewRedisConsumer(client, notify.RedisConsumerConfig{
			Stream:   cfg.RedisStream,
			Group:    cfg.RedisGroup,
			Consumer: consumerName(cfg.RedisConsumer),
		}, courier, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	dispatcher := notify.NewAsyncDispatcher(outbound, cfg.NotifyWorkers, cfg.NotifyBuffer, log, notify.WithDropHook(func(n notify.Notification) {
		notifyMetrics.ObserveNotification(n.Template, "dropped")
	}))

	appts := appointments.NewService(st.appointments, st.directory,
		appointments.WithNotifier(dispatcher),
		appointments.WithMeetingLinks(appointments.NewMeetingLinks(cfg.MeetingBaseURL)),
		appointments.WithMetrics(schedulingMetrics),
		appointments.WithLogger(log),
	)
	notes := consultations.NewService(st.consultations, st.appointments, st.directory,
		consultations.WithMetrics(schedulingMetrics),
		consultations.WithLogger(log),
	)

	grpcServer, healthServer := grpcTransport.NewServer(
		grpcTransport.NewAppointmentsServer(appts, notes, resolver, log),
		cfg.GRPCRequestTimeout,
		log,
	)
	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", cfg.GRPCAddr(), err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpops.New(httpops.Config{DB: st.pinger, Gatherer: reg, Logger: log}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("ops http server started", slog.String("http_addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		healthServer.Shutdown()
		shutdown(log, grpcServer, cfg.ShutdownTimeout)

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(sctx); err != nil {
			log.Warn("ops http shutdown failed", slog.Any("err", err))
		}
		if err := dispatcher.Close(sctx); err != nil {
			log.Warn("notification drain incomplete", slog.Any("err", err))
		}
		return nil
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config, m *metrics.SchedulingMetrics, log *slog.Logger) (stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; data is lost on exit")
		mem := memory.New()
		return stores{appointments: mem, consultations: mem, directory: mem, close: func() {}}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		SlowQuery:       cfg.DBSlowQuery,
		Logger:          log,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return stores{}, err
	}

	retry := postgres.DefaultRetryPolicy()
	retry.OnRetry = func(operation string, attempt int, err error) {
		m.ObserveStoreRetry(operation)
		log.Warn("retrying store operation",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Any("err", err),
		)
	}

	return stores{
		appointments:  postgres.NewAppointmentRepo(db, retry),
		consultations: postgres.NewConsultationRepo(db, retry),
		directory:     postgres.NewDirectoryRepo(db, retry),
		pinger:        db,
		close: func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		},
	}, nil
}

func newResolver(cfg config.Config, log *slog.Logger) (auth.Resolver, error) {
	if cfg.JWTSecret == "" {
		log.Warn("no jwt secret configured; trusting x-user-id metadata")
		return auth.HeaderResolver{}, nil
	}
	return auth.NewJWTResolver(cfg.JWTSecret, cfg.JWTIssuer)
}

func newEmailSender(ctx context.Context, cfg config.Config, log *slog.Logger) (notify.EmailSender, error) {
	switch cfg.NotifyProvider {
	case config.NotifyProviderSendGrid:
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, log), nil
	case config.NotifyProviderSES:
		client, err := notify.NewSESClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return notify.NewSESSender(client, notify.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, log), nil
	default:
		return notify.NewLogSender(log), nil
	}
}

// consumerName keeps replicas distinct inside the Redis consumer group.
func consumerName(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "carebridge"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
