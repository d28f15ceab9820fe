package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/dbx"
	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/dmitrijs2005/requestmanager/internal/server/metrics"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/repomanager"
)

// BreakglassService guards the one-time creation of the emergency account.
// Once breakglass_set is 1 it is never reset, even if the account row is
// lost; recovery then needs direct database access.
type BreakglassService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      Hasher
	logger      logging.Logger
}

// NewBreakglassService wires the guard to its store and hasher.
func NewBreakglassService(db *sql.DB, m repomanager.RepositoryManager, hasher Hasher, logger logging.Logger) *BreakglassService {
	return &BreakglassService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		logger:      logger.With("module", "breakglass_service"),
	}
}

// IsSet reads the latch from storage on every call.
func (s *BreakglassService) IsSet(ctx context.Context) (bool, error) {
	v, err := s.repomanager.Settings(s.db).GetInt(ctx, models.SettingBreakglassSet)
	if err != nil {
		s.logger.Error(ctx, "reading breakglass_set failed", "error", err)
		return false, common.ErrorInternal
	}
	return v == 1, nil
}

// Create latches breakglass_set and inserts the breakglass user with the
// wildcard permission in one transaction. Of any number of concurrent calls
// at most one succeeds; the rest get common.ErrorBreakglassAlreadySet.
func (s *BreakglassService) Create(ctx context.Context, password string) error {
	set, err := s.IsSet(ctx)
	if err != nil {
		metrics.BreakglassCreationsTotal.WithLabelValues("error").Inc()
		return err
	}
	if set {
		metrics.BreakglassCreationsTotal.WithLabelValues("already_set").Inc()
		return common.ErrorBreakglassAlreadySet
	}

	if password == "" {
		return fmt.Errorf("%w: password is required", common.ErrorValidation)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		metrics.BreakglassCreationsTotal.WithLabelValues("error").Inc()
		return common.ErrorInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		latched, err := s.repomanager.Settings(tx).LatchBreakglass(ctx)
		if err != nil {
			return err
		}
		if !latched {
			return common.ErrorBreakglassAlreadySet
		}

		_, err = s.repomanager.Users(tx).Create(ctx, &models.User{
			UserName:      common.BreakglassUsername,
			Email:         common.BreakglassEmail,
			PasswordHash:  hash,
			PermissionIDs: []int64{common.BreakglassPermissionID},
			Team:          common.BreakglassUsername,
		})
		return err
	})

	switch {
	case err == nil:
		metrics.BreakglassCreationsTotal.WithLabelValues("created").Inc()
		s.logger.Warn(ctx, "breakglass account created")
		return nil
	case errors.Is(err, common.ErrorBreakglassAlreadySet):
		metrics.BreakglassCreationsTotal.WithLabelValues("already_set").Inc()
		return common.ErrorBreakglassAlreadySet
	case errors.Is(err, common.ErrorAlreadyExists):
		metrics.BreakglassCreationsTotal.WithLabelValues("error").Inc()
		s.logger.Error(ctx, "breakglass user row already exists while latch was unset")
		return common.ErrorAlreadyExists
	default:
		metrics.BreakglassCreationsTotal.WithLabelValues("error").Inc()
		s.logger.Error(ctx, "breakglass creation failed", "error", err)
		return common.ErrorInternal
	}
}
