package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"election-backend/api"
	"election-backend/encryption"
	"election-backend/models"
	"election-backend/service"
	"election-backend/storage"
)

// Config is the daemon configuration, loadable from a YAML file with
// explicit command-line flags taking precedence over file values.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogDev     bool   `yaml:"log_dev"`

	Storage  StorageConfig  `yaml:"storage"`
	Election ElectionConfig `yaml:"election"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type StorageConfig struct {
	Backend    string                 `yaml:"backend"` // json, sqlite or postgres
	DataDir    string                 `yaml:"data_dir"`
	Retain     int                    `yaml:"retain"`
	SQLitePath string                 `yaml:"sqlite_path"`
	Postgres   storage.PostgresConfig `yaml:"postgres"`
	QueueSize  int                    `yaml:"queue_size"`
}

type ElectionConfig struct {
	Name              string        `yaml:"name"`
	Type              string        `yaml:"type"`
	KeyFile           string        `yaml:"key_file"`
	Authority1Secret  string        `yaml:"authority1_secret"`
	Authority2Secret  string        `yaml:"authority2_secret"`
	MaxPendingRecords int           `yaml:"max_pending_records"`
	Parties           []PartyConfig `yaml:"parties"`
}

type PartyConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Symbol string `yaml:"symbol"`
}

type TelemetryConfig struct {
	TickInterval       string  `yaml:"tick_interval"`
	OfflineProbability float64 `yaml:"offline_probability"`
	LogProbability     float64 `yaml:"log_probability"`
	MaxBatteryDrain    int     `yaml:"max_battery_drain"`
	Seed               int64   `yaml:"seed"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddr: ":8080",
		Storage: StorageConfig{
			Backend:   "json",
			DataDir:   "data",
			Retain:    5,
			QueueSize: 64,
		},
		Election: ElectionConfig{
			Name: "General Election",
			Type: "general",
			Parties: []PartyConfig{
				{ID: "P1", Name: "Progressive Alliance", Symbol: "sun"},
				{ID: "P2", Name: "National Front", Symbol: "star"},
				{ID: "IND", Name: "Independent", Symbol: "dot"},
			},
		},
		Telemetry: TelemetryConfig{
			TickInterval:       "2s",
			OfflineProbability: 0.005,
			LogProbability:     0.01,
			MaxBatteryDrain:    3,
		},
	}
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		addr       = flag.String("addr", "", "HTTP listen address")
		backend    = flag.String("storage", "", "Storage backend: json, sqlite or postgres")
		dataDir    = flag.String("data-dir", "", "Directory for snapshots and the election key")
		logDev     = flag.Bool("log-dev", false, "Use development logging")
	)
	flag.Parse()

	// isFlagSet checks if a flag was explicitly provided on command line
	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if isFlagSet("addr") {
		cfg.ListenAddr = *addr
	}
	if isFlagSet("storage") {
		cfg.Storage.Backend = *backend
	}
	if isFlagSet("data-dir") {
		cfg.Storage.DataDir = *dataDir
	}
	if isFlagSet("log-dev") {
		cfg.LogDev = *logDev
	}

	logger, err := buildLogger(cfg.LogDev)
	if err != nil {
		fmt.Printf("Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("daemon failed", zap.Error(err))
	}
}

func run(cfg *Config, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := openStore(cfg.Storage, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	cryptoService := encryption.NewCryptoService()
	keyFile := cfg.Election.KeyFile
	if keyFile == "" {
		keyFile = filepath.Join(cfg.Storage.DataDir, "election_key.hex")
	}
	electionKey, err := cryptoService.LoadOrCreateKey(keyFile)
	if err != nil {
		return err
	}

	metrics := service.NewMetricsCollector()
	persister := service.NewPersister(store, cfg.Storage.QueueSize, metrics, logger.Named("persister"))
	persister.Start()
	defer persister.Stop()

	svcCfg, err := buildServiceConfig(cfg, logger)
	if err != nil {
		return err
	}

	election, err := service.NewElectionService(svcCfg, electionKey, persister, metrics, logger.Named("election"))
	if err != nil {
		return err
	}
	defer election.Shutdown()

	snap, err := store.LoadSnapshot()
	switch {
	case err == nil:
		if err := election.Restore(snap); err != nil {
			return fmt.Errorf("failed to restore persisted state: %w", err)
		}
	case errors.Is(err, storage.ErrNotFound):
		logger.Info("no persisted state found, starting a fresh election")
	default:
		return fmt.Errorf("failed to load persisted state: %w", err)
	}

	server := api.NewServer(api.ServerConfig{ListenAddr: cfg.ListenAddr}, election, logger.Named("http"))
	server.RunInBackground()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown did not complete cleanly", zap.Error(err))
	}
	return nil
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(cfg StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case "", "json":
		return storage.NewJSONStore(cfg.DataDir, cfg.Retain, logger)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "election.db")
		}
		return storage.NewSQLiteStore(path, logger)
	case "postgres":
		return storage.NewPostgresStore(&cfg.Postgres, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildServiceConfig(cfg *Config, logger *zap.Logger) (service.Config, error) {
	tickInterval := 2 * time.Second
	if cfg.Telemetry.TickInterval != "" {
		parsed, err := time.ParseDuration(cfg.Telemetry.TickInterval)
		if err != nil {
			return service.Config{}, fmt.Errorf("invalid telemetry tick_interval: %w", err)
		}
		tickInterval = parsed
	}

	auth1, auth2 := cfg.Election.Authority1Secret, cfg.Election.Authority2Secret
	if auth1 == "" || auth2 == "" {
		// Development convenience: generate throwaway secrets and print
		// them once so the tally stays reachable on an unconfigured run.
		var err error
		if auth1 == "" {
			if auth1, err = randomSecret(); err != nil {
				return service.Config{}, err
			}
			logger.Info("generated authority 1 secret", zap.String("secret", auth1))
		}
		if auth2 == "" {
			if auth2, err = randomSecret(); err != nil {
				return service.Config{}, err
			}
			logger.Info("generated authority 2 secret", zap.String("secret", auth2))
		}
	}

	parties := make([]models.Party, 0, len(cfg.Election.Parties))
	for _, p := range cfg.Election.Parties {
		parties = append(parties, models.Party{ID: p.ID, Name: p.Name, Symbol: p.Symbol})
	}

	return service.Config{
		ElectionName:      cfg.Election.Name,
		ElectionType:      cfg.Election.Type,
		Parties:           parties,
		Authority1Secret:  auth1,
		Authority2Secret:  auth2,
		MaxPendingRecords: cfg.Election.MaxPendingRecords,
		Telemetry: service.TelemetryConfig{
			TickInterval:       tickInterval,
			OfflineProbability: cfg.Telemetry.OfflineProbability,
			LogProbability:     cfg.Telemetry.LogProbability,
			MaxBatteryDrain:    cfg.Telemetry.MaxBatteryDrain,
			Seed:               cfg.Telemetry.Seed,
		},
	}, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate authority secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
