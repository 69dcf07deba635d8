package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/iho/tripledger/internal/adapter/remote"
	postgresRepo "github.com/iho/tripledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/tripledger/internal/adapter/repository/redis"
	"github.com/iho/tripledger/internal/adapter/repository/sqlite"
	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/infrastructure/logger"
	"github.com/iho/tripledger/internal/infrastructure/redis"
	"github.com/iho/tripledger/internal/infrastructure/worker"
	"github.com/iho/tripledger/internal/usecase"
)

var configKeys = []string{
	"db", "remote", "redis", "sync-interval", "currency",
	"log-level", "user-id", "user-name", "as",
}

// cliConfig is the resolved configuration of one CLI invocation.
type cliConfig struct {
	DBPath       string
	RemoteURL    string
	RedisURL     string
	SyncInterval time.Duration
	Currency     string
	LogLevel     string
	UserID       string
	UserName     string
	ActAs        string
}

// app holds the wiring shared by every command.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        cliConfig
	logger     zerolog.Logger
	currency   *money.Currency

	store       *sqlite.Store
	idGen       usecase.IDGenerator
	trips       *usecase.TripUseCase
	members     *usecase.MemberUseCase
	expenses    *usecase.ExpenseUseCase
	settlements *usecase.SettlementUseCase
	ledger      *usecase.LedgerUseCase
	observer    *usecase.LedgerObserver
}

func loadConfig(v *viper.Viper, configFile string) (cliConfig, error) {
	home, _ := os.UserHomeDir()

	v.SetDefault("db", filepath.Join(home, ".tripledger", "ledger.db"))
	v.SetDefault("sync-interval", time.Minute)
	v.SetDefault("currency", money.USD)
	v.SetDefault("log-level", "warn")
	v.SetDefault("user-id", defaultUserID())
	v.SetDefault("user-name", defaultUserID())

	v.SetEnvPrefix("TRIPLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".tripledger")
		v.SetConfigType("yaml")
		if home != "" {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return cliConfig{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return cliConfig{
		DBPath:       v.GetString("db"),
		RemoteURL:    v.GetString("remote"),
		RedisURL:     v.GetString("redis"),
		SyncInterval: v.GetDuration("sync-interval"),
		Currency:     strings.ToUpper(v.GetString("currency")),
		LogLevel:     v.GetString("log-level"),
		UserID:       v.GetString("user-id"),
		UserName:     v.GetString("user-name"),
		ActAs:        v.GetString("as"),
	}, nil
}

func defaultUserID() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

func (a *app) open(ctx context.Context, logOut io.Writer) error {
	cfg, err := loadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.currency = money.GetCurrency(cfg.Currency)
	if a.currency == nil {
		return fmt.Errorf("unknown currency %q", cfg.Currency)
	}

	a.logger = logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Format: "console"}, logOut)

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	a.store = store

	locks := usecase.NewTripLocks()
	clock := usecase.Clock(time.Now)
	a.idGen = postgresRepo.NewULIDGenerator()
	a.trips = usecase.NewTripUseCase(store, locks, a.idGen, clock)
	a.members = usecase.NewMemberUseCase(store, locks, a.idGen, clock)
	a.expenses = usecase.NewExpenseUseCase(store, locks, a.idGen, clock)
	a.settlements = usecase.NewSettlementUseCase(store, locks, a.idGen, clock)
	a.ledger = usecase.NewLedgerUseCase(store)
	a.observer = usecase.NewLedgerObserver(store)

	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// actor returns the member the user acts as within tripID: the --as member,
// or the member linked to the configured user id. It returns an empty id
// when neither exists.
func (a *app) actor(ctx context.Context, tripID string) (string, error) {
	if a.cfg.ActAs != "" {
		return a.cfg.ActAs, nil
	}

	members, err := a.members.ListMembers(ctx, tripID)
	if err != nil {
		return "", err
	}
	for _, m := range members {
		if m.UserID != nil && *m.UserID == a.cfg.UserID {
			return m.ID, nil
		}
	}
	return "", nil
}

func (a *app) requireActor(ctx context.Context, tripID string) (string, error) {
	id, err := a.actor(ctx, tripID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("you are not a member of trip %s, pass --as <member-id>", tripID)
	}
	return id, nil
}

func (a *app) newSyncWorker(ctx context.Context, tripID string, onOutcome func(*domain.ReconcileOutcome)) (*worker.SyncWorker, func(), error) {
	if a.cfg.RemoteURL == "" {
		return nil, nil, errors.New("no remote configured, set --remote or remote in the config file")
	}

	client, err := remote.New(remote.Config{
		BaseURL:     a.cfg.RemoteURL,
		MaxRetries:  3,
		IDGenerator: a.idGen,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	reconciler := usecase.NewSyncReconciler(usecase.SyncReconcilerConfig{
		Store:  a.store,
		Remote: client,
		Logger: a.logger,
	})

	cleanup := func() {}
	var subscriber worker.Subscriber
	if a.cfg.RedisURL != "" {
		rc, err := redis.NewClient(ctx, a.cfg.RedisURL)
		if err != nil {
			a.logger.Warn().Err(err).Msg("change notifications unavailable")
		} else {
			subscriber = redisRepo.NewChangeNotifier(rc, a.logger)
			cleanup = func() { _ = rc.Close() }
		}
	}

	w := worker.NewSyncWorker(worker.Config{
		Reconciler: reconciler,
		Trips:      a.store.Trips(),
		Subscriber: subscriber,
		Logger:     a.logger,
		Interval:   a.cfg.SyncInterval,
		TripID:     tripID,
		OnOutcome:  onOutcome,
	})
	return w, cleanup, nil
}
