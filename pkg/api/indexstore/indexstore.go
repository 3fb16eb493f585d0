// Package indexstore persists the queryable index of rendered analysis
// reports discovered on disk.
package indexstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildgauge/buildgauge/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for the indexed report data.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertReport(ctx context.Context, report *Report) error
	ListReports(ctx context.Context, discoveryPath string) ([]Report, error)
	ListAllReports(ctx context.Context) ([]Report, error)
	GetReport(
		ctx context.Context, discoveryPath, configurationID string,
	) (*Report, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.APIDatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new index Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.APIDatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "indexstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Report{}); err != nil {
		return fmt.Errorf("running index migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Index database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertReport inserts or updates a report record keyed by
// discovery_path + configuration_id.
func (s *store) UpsertReport(ctx context.Context, report *Report) error {
	result := s.db.WithContext(ctx).
		Where("discovery_path = ? AND configuration_id = ?",
			report.DiscoveryPath, report.ConfigurationID).
		Assign(report).
		FirstOrCreate(report)
	if result.Error != nil {
		return fmt.Errorf("upserting report: %w", result.Error)
	}

	return nil
}

// ListReports returns all reports for a given discovery path ordered by
// generation time.
func (s *store) ListReports(
	ctx context.Context, discoveryPath string,
) ([]Report, error) {
	var reports []Report
	if err := s.db.WithContext(ctx).
		Where("discovery_path = ?", discoveryPath).
		Order("generated_at DESC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	return reports, nil
}

// ListAllReports returns all reports across all discovery paths.
func (s *store) ListAllReports(ctx context.Context) ([]Report, error) {
	var reports []Report
	if err := s.db.WithContext(ctx).
		Order("generated_at DESC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing all reports: %w", err)
	}

	return reports, nil
}

// GetReport returns a single report, or nil when not indexed.
func (s *store) GetReport(
	ctx context.Context, discoveryPath, configurationID string,
) (*Report, error) {
	var report Report

	err := s.db.WithContext(ctx).
		Where("discovery_path = ? AND configuration_id = ?",
			discoveryPath, configurationID).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting report: %w", err)
	}

	return &report, nil
}
