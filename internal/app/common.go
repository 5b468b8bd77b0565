package app

import (
	"fmt"

	"github.com/blackwell-systems/clickcheck/internal/click"
	"github.com/blackwell-systems/clickcheck/internal/clickapi"
	"github.com/blackwell-systems/clickcheck/internal/config"
	"github.com/blackwell-systems/clickcheck/internal/logger"
	"github.com/blackwell-systems/clickcheck/internal/sso"
	"github.com/blackwell-systems/clickcheck/internal/store"
	"github.com/blackwell-systems/clickcheck/internal/updater"
)

// loadConfig reads and validates the configuration selected by --config.
// The configured log level applies unless --verbose was given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !verbose && cfg.LogLevel != "" {
		if err := setupLogger(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openStore opens the database and creates the schema if needed.
func openStore(cfg *config.Config) (*store.Store, error) {
	path, err := getDBPath(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}

	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.CreateSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return db, nil
}

// newCredentials returns the file-backed credentials service. Changes to
// the file are only reported when its directory exists.
func newCredentials(cfg *config.Config) *sso.FileService {
	creds := sso.NewFileService(cfg.CredentialsFile, logger.Logger())
	if err := creds.Watch(); err != nil {
		logger.Logger().Debugf("not watching %s: %v", cfg.CredentialsFile, err)
	}
	return creds
}

// newOrchestrator wires the configured collaborators into an Orchestrator.
func newOrchestrator(cfg *config.Config, creds sso.Service, db updater.Store) (*updater.Orchestrator, error) {
	frameworks := cfg.Frameworks
	if len(frameworks) == 0 {
		found, err := clickapi.Frameworks(cfg.FrameworksDir)
		if err != nil {
			logger.Logger().Warnf("failed to read frameworks from %s: %v", cfg.FrameworksDir, err)
		}
		frameworks = found
	}

	arch := cfg.Architecture
	if arch == "" {
		arch = clickapi.Architecture()
	}

	return updater.New(updater.Options{
		Enumerator:        click.NewProcessEnumerator(cfg.Enumerator, cfg.EnumeratorArgs...),
		Credentials:       creds,
		Store:             db,
		MetadataURL:       cfg.MetadataURL,
		TokenURL:          cfg.TokenURL,
		Frameworks:        frameworks,
		Architecture:      arch,
		HTTPClient:        clickapi.NewSecureHTTPClient(),
		Timeout:           cfg.RequestTimeout,
		CheckInterval:     cfg.CheckInterval,
		IgnoreCredentials: cfg.IgnoreCredentials,
		Logger:            logger.Logger(),
	})
}
