// Command storefront drives the storefront client state layer from a terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/api"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/kvstore"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/notify"
	"storefront/internal/orders"
	"storefront/internal/session"
	"storefront/internal/state"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type app struct {
	cfg       *config.Config
	log       *zap.Logger
	kv        kvstore.Store
	store     *state.Store
	notices   *notify.Queue
	session   *session.Store
	client    *api.Client
	catalog   *catalog.Cache
	moderator *catalog.Moderator
	cart      *cart.Controller
	orders    *orders.Controller
	closers   []func() error
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to start client", zap.Error(err))
	}
	defer a.close()

	if err := a.bootstrap(ctx); err != nil {
		log.Warn("Bootstrap incomplete", zap.Error(err))
	}

	err = a.run(ctx, flag.Arg(0), flag.Args()[1:])
	a.printNotices()
	if err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	kv, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.kv = kv

	rec := metrics.New(prometheus.NewRegistry())
	store := state.NewStore(logger.Component(log, "state"))
	a.store = store
	a.notices = notify.NewQueue(cfg.Client.NoticeTTL, logger.Component(log, "notify"))

	nav := session.NavigatorFunc(func(route string) {
		fmt.Fprintf(os.Stderr, "please sign in (%s)\n", route)
	})
	a.session = session.NewStore(kv, store, nav, a.notices, logger.Component(log, "session"))

	a.client = api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithTokenSource(a.session),
		api.WithMetrics(rec),
		api.WithLogger(logger.Component(log, "api")),
	)

	a.catalog = catalog.NewCache(a.client, store, a.notices, logger.Component(log, "catalog"))
	a.moderator = catalog.NewModerator(a.client, a.session, a.notices, logger.Component(log, "moderation"))
	a.cart = cart.NewController(a.client, a.session, a.catalog, store, kv, logger.Component(log, "cart"),
		cart.WithMetrics(rec),
		cart.WithNotifier(a.notices),
	)
	a.orders = orders.NewController(a.client, a.session, store, kv, logger.Component(log, "orders"),
		orders.WithMetrics(rec),
		orders.WithNotifier(a.notices),
	)
	return a, nil
}

// openStore selects the durable client store named by STATE_STORE
func (a *app) openStore(ctx context.Context) (kvstore.Store, error) {
	ns := a.cfg.Client.StateNamespace

	switch a.cfg.Client.StateStore {
	case config.StateStoreMemory:
		a.log.Warn("Using in-memory client state; nothing survives this process")
		return kvstore.NewMemory(), nil

	case config.StateStoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr(),
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		return kvstore.NewRedis(rdb, ns), nil

	case config.StateStorePostgres:
		db, err := database.Open(ctx, a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.log.Info("Database health check", zap.Any("health", database.Health(ctx, db)))
		if err := database.RunMigrations(db, a.log); err != nil {
			db.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return kvstore.NewPostgres(db, ns), nil
	}
	return nil, fmt.Errorf("unknown STATE_STORE %q", a.cfg.Client.StateStore)
}

// bootstrap restores the session, loads the catalog and finishes work left by a previous run
func (a *app) bootstrap(ctx context.Context) error {
	restored, err := a.session.Restore(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.catalog.LoadAll(gctx)
	})
	if restored {
		g.Go(func() error {
			if err := a.cart.ResumeSweep(gctx); err != nil {
				return err
			}
			return a.cart.Refresh(gctx)
		})
		g.Go(func() error {
			return a.orders.Reconcile(gctx)
		})
	}
	return g.Wait()
}

func (a *app) printNotices() {
	for _, n := range a.notices.Active() {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Error("Failed to close resource", zap.Error(err))
		}
	}
}
