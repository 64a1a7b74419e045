// The consumer tails the ride-events topic and keeps the Redis route board in
// sync: open rides are upserted, everything else is removed. The board is a
// cache; losing it only costs board reads until the consumer catches up.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/uniride/internal/board"
	"github.com/example/uniride/internal/config"
	"github.com/example/uniride/internal/logging"
	"github.com/example/uniride/internal/models"
)

var (
	eventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uniride",
		Name:      "consumer_events_consumed_total",
		Help:      "Ride events read off Kafka.",
	})
	eventsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uniride",
		Name:      "consumer_events_invalid_total",
		Help:      "Ride events that failed to decode.",
	})
	boardUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uniride",
		Name:      "consumer_board_updates_total",
		Help:      "Successful route board writes.",
	})
	boardErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uniride",
		Name:      "consumer_board_errors_total",
		Help:      "Route board writes that exhausted retries.",
	})
)

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	logger := logging.New(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "uniride-board-consumer"
	}

	rb := board.NewRedisBoard(redisAddr, cfg.RedisPassword, cfg.BoardKey)
	defer rb.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rb.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  group,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	logger.Info("consuming ride events", "topic", cfg.KafkaTopic, "brokers", brokers, "group", group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		eventsConsumed.Inc()

		var ev models.RideEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			eventsInvalid.Inc()
			logger.Warn("invalid ride event", "error", err)
			continue
		}

		if err := applyWithRetry(ctx, rb, ev, 3, 200*time.Millisecond); err != nil {
			boardErrors.Inc()
			logger.Warn("board update failed", "ride", ev.Ride.ID, "error", err)
			continue
		}
		boardUpdates.Inc()
	}
}

// applyWithRetry pushes one ride event onto the board with bounded
// exponential backoff. Open rides are upserted; any other status drops the
// entry so the board only ever lists joinable rides.
func applyWithRetry(ctx context.Context, b board.Updater, ev models.RideEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if ev.Ride.Status == models.RideOpen {
			err = b.Update(ctx, ev.Ride)
		} else {
			err = b.Remove(ctx, ev.Ride.ID)
		}
		if err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
