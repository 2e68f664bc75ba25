// almengine is the adaptive order pricing and replacement engine. It consumes
// venue feeds from the broker, keeps the live price/order state, and emits
// replace/cancel instructions for tracked orders.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cefalpha/almengine/internal/archive"
	"github.com/cefalpha/almengine/internal/config"
	"github.com/cefalpha/almengine/internal/forecast"
	"github.com/cefalpha/almengine/internal/ingest"
	"github.com/cefalpha/almengine/internal/messaging"
	"github.com/cefalpha/almengine/internal/orders"
	"github.com/cefalpha/almengine/internal/outbound"
	"github.com/cefalpha/almengine/internal/pairs"
	"github.com/cefalpha/almengine/internal/pricestore"
	"github.com/cefalpha/almengine/internal/replace"
	"github.com/cefalpha/almengine/internal/server"
	"github.com/cefalpha/almengine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("engine stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := messaging.Dial(ctx, cfg.Broker, log); err != nil {
		return err
	}

	prices := pricestore.NewStore()
	fxRates := pricestore.NewFXStore()
	orderStore := orders.NewStore()
	routeStore := orders.NewRouteStore()
	pairStore := pairs.NewStore()
	inflight := orders.NewInFlightSet()

	dlq := messaging.NewProducer(cfg.Broker, log)
	defer dlq.Close()

	var publisher outbound.Publisher
	if cfg.Production() {
		producer := messaging.NewProducer(cfg.Broker, log)
		defer producer.Close()
		publisher = outbound.NewKafkaPublisher(producer, cfg.Queues.Instructions, log)
	} else {
		publisher = outbound.NewSimulationPublisher(log)
		log.Info("simulation environment: instructions will not reach the venue")
	}

	var forecasts forecast.Source
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		forecasts = forecast.NewRedisSource(client, cfg.Redis.ForecastPrefix, cfg.Redis.ForecastTTL, log)
	} else {
		forecasts = forecast.NewMemorySource()
	}

	engine := replace.NewEngine(orderStore, routeStore, prices, forecasts, inflight, publisher, log)
	engine.UseLastWhenClosed = cfg.Engine.UseLastWhenClosed
	sequencer := pairs.NewSequencer(pairStore, prices, publisher, log)

	var flusher archive.Flusher = archive.NopFlusher{}
	if cfg.Production() && cfg.Database.DSN != "" {
		gf, err := archive.NewGormFlusher(cfg.Database.DSN, orderStore, prices, nil, log)
		if err != nil {
			return err
		}
		flusher = gf
	}

	consumers := []*messaging.Consumer{
		ingest.NewPriceConsumer(cfg.Broker, cfg.Queues.Prices, prices, dlq, log),
		ingest.NewFXConsumer(cfg.Broker, cfg.Queues.FXRates, fxRates, dlq, log),
		ingest.NewOrderStatusConsumer(cfg.Broker, cfg.Queues.OrderStatus, orderStore, inflight, pairStore, dlq, log),
		ingest.NewRouteStatusConsumer(cfg.Broker, cfg.Queues.RouteStatus, routeStore, dlq, log),
		ingest.NewFillConsumer(cfg.Broker, cfg.Queues.Fills, orderStore, pairStore, dlq, log),
	}
	for _, c := range consumers {
		go runConsumer(ctx, c, cfg.Broker.ReconnectBackoff, log)
	}

	ops := server.NewOps(cfg.Ops.Host, cfg.Ops.Port, log)
	go func() {
		if err := ops.Run(); err != nil {
			log.Error("ops endpoint failed", zap.Error(err))
		}
	}()

	log.Info("engine started",
		zap.String("environment", cfg.Environment),
		zap.Strings("brokers", cfg.Broker.Brokers))

	runDriver(ctx, cfg, engine, sequencer, flusher, log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		log.Warn("ops shutdown", zap.Error(err))
	}
	log.Info("engine stopped")
	return nil
}

// runConsumer keeps one feed alive for the life of the process: a consumer
// that fails restarts after the reconnect backoff rather than silently
// dropping its queue.
func runConsumer(ctx context.Context, c *messaging.Consumer, backoff time.Duration, log *zap.Logger) {
	for {
		err := c.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Error("consumer exited, restarting", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

// runDriver runs the periodic evaluation cycles until shutdown.
func runDriver(
	ctx context.Context,
	cfg *config.Config,
	engine *replace.Engine,
	sequencer *pairs.Sequencer,
	flusher archive.Flusher,
	log *zap.Logger,
) {
	refTicker := time.NewTicker(cfg.Engine.RefIndexInterval)
	discountTicker := time.NewTicker(cfg.Engine.DiscountInterval)
	pairTicker := time.NewTicker(cfg.Engine.PairInterval)
	flushTicker := time.NewTicker(cfg.Database.FlushInterval)
	defer refTicker.Stop()
	defer discountTicker.Stop()
	defer pairTicker.Stop()
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refTicker.C:
			engine.ProcessRefIndexOrders(ctx)
		case <-discountTicker.C:
			engine.ProcessDiscountOrders(ctx)
		case <-pairTicker.C:
			sequencer.ProcessOrders(ctx)
		case <-flushTicker.C:
			if err := flusher.Flush(ctx); err != nil {
				log.Error("snapshot flush failed", zap.Error(err))
			}
		}
	}
}
