// Command conduit assembles a runnable instance of the messaging
// runtime from its config file/environment: storage, transports, the
// processor and its pumps, and the admin HTTP surface. It is the
// domain-specific replacement for the teacher's unicorn scaffolding
// CLI (core/cmd/unicorn), which generated new projects rather than
// running one.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/madcok-co/conduit/contrib/cache/redis"
	conduitcfg "github.com/madcok-co/conduit/contrib/config"
	zaplogger "github.com/madcok-co/conduit/contrib/logger/zap"
	gormstore "github.com/madcok-co/conduit/contrib/store/gorm"
	"github.com/madcok-co/conduit/contrib/transform/brotli"

	"github.com/madcok-co/conduit/core/pkg/app"
	"github.com/madcok-co/conduit/core/pkg/mediator"
	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/pipeline"
	"github.com/madcok-co/conduit/core/pkg/processor"
	"github.com/madcok-co/conduit/core/pkg/pump"
	"github.com/madcok-co/conduit/core/pkg/registry"
	"github.com/madcok-co/conduit/core/pkg/request"
	"github.com/madcok-co/conduit/core/pkg/scheduler"
	"github.com/madcok-co/conduit/core/pkg/transform"

	"github.com/madcok-co/conduit/internal/adminapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "conduit:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := conduitcfg.NewDriver(&conduitcfg.Config{
		ConfigName:   "conduit",
		ConfigPath:   ".",
		ConfigType:   "yaml",
		AutomaticEnv: true,
		EnvPrefix:    "CONDUIT",
		Defaults: map[string]interface{}{
			"log.level":       "info",
			"log.format":      "console",
			"storage.dsn":     "conduit.db",
			"admin.port":      9090,
			"sweep.interval":  "30s",
			"sweep.threshold": "10s",
			"sweep.limit":     100,
		},
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zaplogger.NewDriverWithConfig(&zaplogger.Config{
		Level:     cfg.GetString("log.level"),
		Format:    cfg.GetString("log.format"),
		Output:    "stdout",
		AddCaller: true,
	})
	defer logger.Sync()

	db, err := gorm.Open(sqlite.Open(cfg.GetString("storage.dsn")), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if err := gormstore.Migrate(db); err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}
	outboxStore := gormstore.NewOutboxStore(db)

	subscribers := registry.NewSubscriberRegistry()
	producers := registry.NewProducerRegistry()
	policies := registry.NewPolicyRegistry()

	mediatorOpts := []mediator.Option{mediator.WithLogger(logger)}
	if addr := cfg.GetString("cache.redis_addr"); addr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: addr})
		mediatorOpts = append(mediatorOpts, mediator.WithLock(redis.NewDriver(rdb)))
	}
	med := mediator.New(outboxStore, producers, policies, mediatorOpts...)

	transforms := transform.NewCache()
	transform.Register(string(request.Command), transform.Descriptor{StepIndex: 0, Transform: brotli.New(brotli.DefaultLevel, 1024)})
	transform.Register(string(request.Event), transform.Descriptor{StepIndex: 0, Transform: brotli.New(brotli.DefaultLevel, 1024)})
	transform.RegisterMapper(string(request.Command), jsonMapper{})
	transform.RegisterMapper(string(request.Event), jsonMapper{})
	transform.RegisterMapper(string(request.Document), jsonMapper{})

	builder := pipeline.NewBuilder(subscribers, handlerFactory)

	proc := processor.New(processor.Config{
		Subscribers: subscribers,
		Policies:    policies,
		Producers:   producers,
		Builder:     builder,
		Mediator:    med,
		Transforms:  transforms,
		Logger:      logger,
	})

	sched := scheduler.New(scheduler.NewMemoryBackend(context.Background(), proc.Fire))
	proc.AttachScheduler(sched)

	inbound := pump.NewMemoryChannel("inbound", 256, 64)
	p := pump.New(inbound, transforms, dispatcherFor(proc), logger, pump.DefaultConfig())
	reactor := pump.NewReactor(p)

	admin := adminapi.New(proc, logger, &adminapi.Config{
		Port:            cfg.GetInt("admin.port"),
		OperatorKeyHash: cfg.GetString("admin.operator_key_hash"),
		SweepBatchLimit: cfg.GetInt("sweep.limit"),
		SweepOlderThan:  cfg.GetDuration("sweep.threshold"),
	})

	application := app.New(proc, med, logger, &app.Config{
		Name:           "conduit",
		Version:        "1.0.0",
		SweepInterval:  cfg.GetDuration("sweep.interval"),
		SweepThreshold: cfg.GetDuration("sweep.threshold"),
		SweepLimit:     cfg.GetInt("sweep.limit"),
	})
	application.AddPump("inbound", reactor)
	application.OnStart(func(ctx context.Context) error {
		go func() {
			if err := admin.Start(ctx); err != nil {
				logger.WithError(err).Error("admin surface stopped")
			}
		}()
		return nil
	})

	return application.Run()
}

// dispatcherFor adapts a Processor into the pump.Dispatcher shape: a
// pumped message's requestType picks which of Send/Publish/Post to
// replay the unwrapped body through.
func dispatcherFor(proc *processor.Processor) pump.Dispatcher {
	return func(ctx context.Context, requestType, handlerType string, body any, mt message.Type) error {
		switch request.Type(requestType) {
		case request.Command:
			_, err := proc.Send(ctx, request.NewCommand(handlerType, body))
			return err
		case request.Event:
			return proc.Publish(ctx, request.NewEvent(handlerType, body))
		case request.Document:
			_, err := proc.Post(ctx, request.NewDocument(handlerType, body))
			return err
		default:
			return fmt.Errorf("conduit: unknown request type %q", requestType)
		}
	}
}

// handlerFactory resolves a handler by type. Concrete handlers are
// registered by the deployment embedding this binary; none are wired
// by default.
func handlerFactory(handlerType string) (pipeline.Handler, error) {
	return nil, fmt.Errorf("conduit: no handler registered for %q", handlerType)
}

// jsonMapper is the default Request.Body<->wire mapper: JSON in, JSON
// out, suitable until a deployment needs a binary wire format.
type jsonMapper struct{}

func (jsonMapper) MapToBytes(body any) ([]byte, error) {
	return json.Marshal(body)
}

func (jsonMapper) MapFromBytes(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (jsonMapper) Name() string { return "json" }
