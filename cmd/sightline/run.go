package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"sightline/internal/alerts"
	"sightline/internal/api"
	"sightline/internal/config"
	"sightline/internal/describe"
	"sightline/internal/engine"
	"sightline/internal/events"
	"sightline/internal/ingest"
	"sightline/internal/logging"
	"sightline/internal/metrics"
	"sightline/internal/model"
	"sightline/internal/power"
	"sightline/internal/s3"
	"sightline/internal/speech"
	"sightline/internal/storage"
)

const (
	configWatchInterval = 3 * time.Second
	pruneInterval       = 24 * time.Hour
)

func runAction(c *cli.Context) error {
	mgr, err := loadManager(c)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	level := cfg.LogLevel
	if v := c.String(flagLogLevel); v != "" {
		level = v
	}
	logger := logging.NewLogger(level, cfg.LogFile)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("sightline starting", "version", version, "config", describePath(mgr.Path()), "camera_id", cfg.Camera.ID)
	err = run(ctx, mgr, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sightline stopped", "error", err)
		return err
	}
	logger.Info("sightline stopped")
	return nil
}

// closers collects shutdown hooks in wiring order and runs them in reverse.
type closers []func() error

func (cs closers) close() error {
	var err error
	for i := len(cs) - 1; i >= 0; i-- {
		err = multierr.Append(err, cs[i]())
	}
	return err
}

func run(ctx context.Context, mgr *config.Manager, logger *slog.Logger) (err error) {
	cfg := mgr.Get()
	var cleanup closers
	defer func() {
		err = multierr.Append(err, cleanup.close())
	}()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	var cache describe.Cache
	var history api.HistoryReader
	if store != nil {
		cleanup = append(cleanup, store.Close)
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		cache, history = store, store
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	var publisher engine.Publisher
	var feedbackPublisher speech.Publisher
	if cfg.Events.Enabled {
		producer, err := events.NewProducer(cfg.Events.Brokers, cfg.Events.Topic, logger)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, producer.Close)
		publisher, feedbackPublisher = producer, producer
		logger.Info("events enabled", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	gen, err := describe.NewGenerator(cfg.LLM, &http.Client{})
	if err != nil {
		return err
	}
	describer := describe.NewService(gen, cache, cfg, logger)

	ttsEngine, err := speech.NewEngine(cfg.Speech, logger)
	if err != nil {
		return err
	}
	speaker := speech.NewSpeaker(ttsEngine, cfg.Speech.QueueSize, logger)
	feedback := speech.NewFeedback(cfg.Speech, feedbackPublisher, logger)

	metricsStore := metrics.NewStore(cfg.Metrics.StoreLimit)
	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)

	opts := []engine.Option{
		engine.WithDescriber(describer),
		engine.WithSpeaker(speaker),
		engine.WithFeedback(feedback),
	}
	if publisher != nil {
		opts = append(opts, engine.WithPublisher(publisher))
	}
	if cfg.Detector.Endpoint != "" {
		opts = append(opts, engine.WithDetector(ingest.NewHTTPDetector(cfg.Detector, logger)))
	}
	if cfg.Archive.Enabled {
		bucket, err := s3.NewMinioClient(cfg.S3, cfg.Archive.Bucket)
		if err != nil {
			return err
		}
		if err := bucket.EnsureBucket(ctx); err != nil {
			return err
		}
		opts = append(opts, engine.WithArchiver(s3.NewArchiver(bucket, logger)))
		logger.Info("frame archive enabled", "bucket", cfg.Archive.Bucket)
	}
	eng := engine.NewEngine(cfg, logger, metricsStore, alertsStore, store, opts...)

	frames := make(chan model.Frame, cfg.Ingest.ChannelBuffer)
	sink := ingest.NewSink(frames, logger, eng.RecordDrop)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		speaker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		eng.Run(ctx, frames)
		return nil
	})
	g.Go(func() error {
		mgr.Watch(configWatchInterval, func(next *config.Config) {
			eng.UpdateConfig(next)
			logger.Info("config reloaded", "path", mgr.Path())
		}, func(err error) {
			logger.Warn("config reload failed", "error", err)
		}, ctx.Done())
		return nil
	})
	if store != nil && cfg.Storage.CacheRetention > 0 {
		g.Go(func() error {
			pruneLoop(ctx, store, mgr, logger)
			return nil
		})
	}

	if err := startSources(ctx, mgr, eng, sink, logger); err != nil {
		return err
	}

	if cfg.API.Enabled {
		server := api.NewServer(mgr, metricsStore, alertsStore, eng, history, speaker, logger, version)
		api.Start(ctx, server, cfg.API.Addr, logger)
	} else {
		logger.Info("api disabled")
	}

	<-ctx.Done()
	return g.Wait()
}

func startSources(ctx context.Context, mgr *config.Manager, eng *engine.Engine, sink *ingest.Sink, logger *slog.Logger) error {
	cfg := mgr.Get()
	parser := ingest.NewParser(cfg.Ingest.Parser)
	if cfg.Ingest.REST.Enabled {
		ingest.StartREST(ctx, cfg.Ingest.REST.Addr, parser, sink, logger)
	}
	if cfg.Ingest.TCPStream.Enabled {
		if _, err := ingest.StartTCPStream(ctx, cfg.Ingest.TCPStream.Addr, parser, sink, logger); err != nil {
			return fmt.Errorf("tcp stream ingest: %w", err)
		}
	}
	if cfg.Ingest.FileTail.Enabled {
		ingest.StartFileTail(ctx, cfg.Ingest.FileTail.Files, cfg.Ingest.FileTail.StartAtEnd, parser, sink, logger)
	}
	if cfg.Ingest.Kafka.Enabled {
		ingest.StartKafka(ctx, cfg.Ingest.Kafka, parser, sink, logger)
	}

	var src ingest.FrameSource
	switch cfg.Camera.Source {
	case "dir":
		dir, err := ingest.NewDirSource(cfg.Camera.Dir, cfg.Camera.ID, cfg.Camera.Loop)
		if err != nil {
			return err
		}
		src = dir
	case "s3":
		client, err := s3.NewMinioClient(cfg.S3, cfg.Camera.Bucket)
		if err != nil {
			return err
		}
		src = s3.NewSource(client, cfg.Camera.Prefix, cfg.Camera.ID, cfg.Camera.Loop)
	default:
		return nil
	}
	logger.Info("capture enabled", "source", cfg.Camera.Source, "fps", cfg.Camera.FPSProcessing)
	ingest.StartCapture(ctx, src, captureFPS(mgr, eng.Power()), sink, logger)
	return nil
}

// captureFPS follows the power profile when adaptive and the current config
// otherwise, so reloads retune capture without a restart.
func captureFPS(mgr *config.Manager, pm *power.Manager) func() float64 {
	return func() float64 {
		if pm.Adaptive() {
			return float64(pm.Profile().FPS)
		}
		return mgr.Get().Camera.FPSProcessing
	}
}

// pruneLoop drops rarely used cached descriptions once at startup and then daily.
func pruneLoop(ctx context.Context, store storage.Store, mgr *config.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		sc := mgr.Get().Storage
		if sc.CacheRetention > 0 {
			removed, err := store.PruneCache(ctx, time.Now().UTC().Add(-sc.CacheRetention), sc.CacheMinUses)
			if err != nil {
				logger.Warn("description cache prune failed", "error", err)
			} else if removed > 0 {
				logger.Info("description cache pruned", "removed", removed)
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
