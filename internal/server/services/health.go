package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/dmitrijs2005/requestmanager/internal/server/metrics"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/repomanager"
)

// RequiredTables are the tables the authentication core reads and writes.
var RequiredTables = []string{"users", "permissions", "tokens", "app_settings"}

// HealthReport is the outcome of a database health check.
type HealthReport struct {
	Healthy bool            `json:"healthy"`
	Tables  map[string]bool `json:"tables"`
	Error   string          `json:"error,omitempty"`
}

// HealthService checks that the Data Store answers and has its tables.
type HealthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

// NewHealthService returns a HealthService over db.
func NewHealthService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *HealthService {
	return &HealthService{db: db, repomanager: m, logger: logger.With("module", "health_service")}
}

// Ping checks that the database answers.
func (s *HealthService) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		metrics.DatabaseUp.Set(0)
		return fmt.Errorf("ping: %w", err)
	}
	metrics.DatabaseUp.Set(1)
	return nil
}

// CheckDatabase reports the presence of every required table. A storage
// error stops the check and is recorded in the report.
func (s *HealthService) CheckDatabase(ctx context.Context) HealthReport {
	report := HealthReport{Healthy: true, Tables: make(map[string]bool, len(RequiredTables))}
	repo := s.repomanager.Schema(s.db)

	for _, table := range RequiredTables {
		exists, err := repo.TableExists(ctx, table)
		if err != nil {
			s.logger.Error(ctx, "table check failed", "table", table, "error", err)
			metrics.DatabaseUp.Set(0)
			report.Healthy = false
			report.Error = "database unreachable"
			return report
		}
		report.Tables[table] = exists
		if !exists {
			report.Healthy = false
		}
	}

	metrics.DatabaseUp.Set(1)
	if !report.Healthy {
		report.Error = "one or more tables do not exist"
	}
	return report
}
