package app

import (
	"log/slog"
	"path/filepath"
	"time"

	"riskgate/internal/auth"
	"riskgate/internal/domain"
	"riskgate/internal/infra"
	"riskgate/internal/infra/storage"
	"riskgate/internal/risk"
	"riskgate/internal/venue"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Metrics    *infra.Metrics
	Store      *risk.Store
	Risk       *risk.Manager
	Journal    *storage.Journal
	Authorizer *auth.Authorizer
	Venue      domain.VenueConnector
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger, persisted
// order store, journal, authorizer and venue connector. Configuration and
// security failures here are fatal; main exits on error.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping riskgate...")

	// 1. Load Config (fails on missing/placeholder secret)
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Persisted Order Store
	store, err := risk.NewStore(risk.StoreConfig{
		BaseDir:  cfg.Storage.BaseDir,
		FileName: cfg.Storage.StateFile,
		Secret:   cfg.Auth.SigningSecret,
		Capacity: cfg.Risk.MaxOpenExposures,
	})
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Exposure store ready", slog.Int("open", store.Len()))

	// 4. Risk Manager
	b.Risk = risk.NewManager(risk.Params{
		AccountBalance:          cfg.Risk.AccountBalance,
		RiskFraction:            cfg.Risk.RiskFraction,
		MinLot:                  cfg.Risk.MinLot,
		MaxLot:                  cfg.Risk.MaxLot,
		LotStep:                 cfg.Risk.LotStep,
		PipValue:                cfg.Risk.PipValue,
		MaxSpread:               cfg.Risk.MaxSpread,
		MaxStopDistanceFraction: cfg.Risk.MaxStopDistanceFraction,
	}, store)

	// 5. Execution Journal (audit trail)
	journal, err := storage.NewJournal(filepath.Join(cfg.Storage.BaseDir, cfg.Storage.JournalFile))
	if err != nil {
		return err
	}
	b.Journal = journal
	slog.Info("✅ Execution journal ready")

	// 6. Authorizer + Metrics
	b.Authorizer = auth.NewAuthorizer(cfg.Auth.SigningSecret, time.Duration(cfg.Auth.TTLSeconds)*time.Second)
	b.Metrics = infra.NewMetrics()

	// 7. Venue Connector
	b.Venue = venue.NewSim(cfg.Risk.AccountBalance)
	slog.Info("✅ Venue connector ready", slog.String("mode", cfg.Gateway.VenueMode))

	return nil
}
