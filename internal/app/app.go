package app

import (
	"context"
	"errors"
	"time"

	"github.com/appetiteclub/apt"
	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/apt/middleware"

	"github.com/appetiteclub/kitchenops/internal/events"
	"github.com/appetiteclub/kitchenops/internal/kitchen"
	"github.com/appetiteclub/kitchenops/internal/mongo"
	"github.com/appetiteclub/kitchenops/internal/ops"
	"github.com/appetiteclub/kitchenops/pkg"
	"github.com/appetiteclub/kitchenops/pkg/event"
)

const (
	AppName    = "kitchenops"
	AppVersion = "0.1.0"

	defaultNATSURL = "nats://localhost:4222"
	streamName     = "KITCHENOPS_EVENTS"
	subscriberName = "kitchenops"
)

type runner interface {
	Run(ctx context.Context) error
}

// App wires the kitchen and ops modules into one micro service.
type App struct {
	config *apt.Config
	logger apt.Logger
	micro  runner

	baseRepo *mongo.BaseRepo
	closers  []func() error
}

func New(config *apt.Config, logger apt.Logger) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// Initialize connects storage and messaging and builds every component.
func (a *App) Initialize(ctx context.Context) error {
	a.baseRepo = mongo.NewBaseRepo(a.config, a.logger)
	if err := a.baseRepo.Start(ctx); err != nil {
		return err
	}

	db := a.baseRepo.GetDatabase()
	if db == nil {
		return errors.New("repository database is nil")
	}

	ticketRepo := mongo.NewTicketRepo(db)
	stationRepo := mongo.NewStationRepo(db)
	eventRepo := mongo.NewEventRepo(db)
	incidentRepo := mongo.NewIncidentRepo(db)
	metricsRepo := mongo.NewOpsMetricsRepo(db)

	if err := mongo.EnsureIndexes(ctx, ticketRepo, stationRepo, eventRepo, incidentRepo); err != nil {
		return err
	}

	publisher, subscriber, err := a.messaging()
	if err != nil {
		return err
	}

	orderURL := a.config.GetStringOrDef("services.order.url", "")
	var orderSync *kitchen.OrderSyncBridge
	if orderURL != "" {
		orderSync = kitchen.NewOrderSyncBridge(kitchen.NewHTTPOrderGateway(apt.NewServiceClient(orderURL)), a.logger)
	} else {
		a.logger.Info("order sync disabled", "reason", "services.order.url not set")
	}

	sla := kitchen.SLASettingsFromConfig(a.config)
	board := kitchen.NewTicketBoard(ticketRepo, a.logger)

	kitchenSvc := kitchen.NewService(kitchen.ServiceDeps{
		Tickets:   ticketRepo,
		Stations:  stationRepo,
		Events:    eventRepo,
		OrderSync: orderSync,
		Publisher: publisher,
		Board:     board,
		SLA:       sla,
	}, a.logger)

	locker, closeLocker, err := ops.LockerFromConfig(ctx, a.config, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeLocker)

	evaluator := ops.NewEvaluator(ops.EvaluatorDeps{
		Metrics:    metricsRepo,
		Tickets:    ticketRepo,
		SLA:        sla,
		Thresholds: ops.ThresholdsFromConfig(a.config),
	}, a.logger)

	engine := ops.NewEngine(ops.EngineDeps{
		Incidents: incidentRepo,
		Locker:    locker,
		Policy:    ops.EscalationPolicyFromConfig(a.config),
		Publisher: publisher,
	}, a.logger)

	sweepSettings, err := ops.SweepSettingsFromConfig(a.config)
	if err != nil {
		return err
	}
	healthReporter := ops.NewHealthReporter()
	sweeper := ops.NewSweeper(evaluator, engine, healthReporter, sweepSettings, a.logger)

	orderPlaced := events.NewOrderPlacedSubscriber(subscriber, kitchenSvc, a.logger)

	kitchenHandler := kitchen.NewHandler(kitchen.HandlerDeps{Service: kitchenSvc}, a.config, a.logger)
	opsHandler := ops.NewHandler(ops.HandlerDeps{
		Evaluator: evaluator,
		Engine:    engine,
		Sweeper:   sweeper,
	}, a.config, a.logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})
	stack = append(stack, middleware.InternalOnly())

	boardLifecycle := apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			if err := board.Warm(ctx); err != nil {
				a.logger.Error("cannot warm ticket board", "error", err)
			}
			return nil
		},
	}

	lifecycles := []interface{}{
		apt.LifecycleHooks{OnStop: a.baseRepo.Stop},
		boardLifecycle,
		orderPlaced,
		sweeper,
		apt.LifecycleHooks{OnStop: func(context.Context) error { return a.close() }},
	}

	options := []apt.Option{
		apt.WithConfig(a.config),
		apt.WithLogger(a.logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", kitchenHandler, opsHandler),
		apt.WithGRPCServerModules("grpc.port", healthReporter),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(AppName),
	}

	a.micro = apt.NewMicro(options...)
	return nil
}

// messaging returns the event publisher and the order subscriber. With
// nats.stream.enabled the publisher is a JetStream stream retaining kitchen
// and ops events; otherwise it is a core NATS publisher.
func (a *App) messaging() (aptevents.Publisher, aptevents.Subscriber, error) {
	natsURL := a.config.GetStringOrDef("nats.url", defaultNATSURL)

	var publisher aptevents.Publisher
	if a.config.GetStringOrDef("nats.stream.enabled", "false") == "true" {
		stream, err := pkg.NewNATSStream(pkg.NATSStreamConfig{
			URL:        natsURL,
			StreamName: streamName,
			Topics:     []string{event.KitchenTicketsTopic, event.OpsIncidentsTopic},
			MaxAge:     24 * time.Hour,
		})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, stream.Close)
		a.logger.Info("NATS stream initialized", "stream", streamName)
		publisher = stream
	} else {
		pub, err := pkg.NewNATSPublisher(natsURL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, pub.Close)
		publisher = pub
	}

	subscriber, err := pkg.NewNATSSubscriber(natsURL, subscriberName, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, subscriber.Close)

	return publisher, subscriber, nil
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) Run(ctx context.Context) error {
	if a.micro == nil {
		return errors.New("app not initialized")
	}
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)
	if err := a.micro.Run(ctx); err != nil {
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}

// Shutdown releases connections when the app is used without Run.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.close()
	if a.baseRepo != nil {
		if stopErr := a.baseRepo.Stop(ctx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}
	return err
}
