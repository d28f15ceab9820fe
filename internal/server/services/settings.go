package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/repomanager"
)

// Session lifetimes used when app_settings lacks the row.
const (
	DefaultUserSessionTimeout       = 30 * time.Minute
	DefaultBreakglassSessionTimeout = 10 * time.Minute
)

// SettingsProvider reads app_settings on every call; nothing is cached, so a
// changed timeout applies to the next login.
type SettingsProvider struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewSettingsProvider reads settings through m bound to db.
func NewSettingsProvider(db *sql.DB, m repomanager.RepositoryManager) *SettingsProvider {
	return &SettingsProvider{db: db, repomanager: m}
}

// Int returns the raw value of a setting, or common.ErrorNotFound.
func (p *SettingsProvider) Int(ctx context.Context, name string) (int, error) {
	return p.repomanager.Settings(p.db).GetInt(ctx, name)
}

// BreakglassEnabled reports whether the breakglass account may log in. A
// missing row counts as enabled.
func (p *SettingsProvider) BreakglassEnabled(ctx context.Context) (bool, error) {
	v, err := p.Int(ctx, models.SettingBreakglassEnabled)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return true, nil
		}
		return false, err
	}
	return v != 0, nil
}

// SessionPolicy selects the session lifetime for user. Holders of the
// wildcard permission get the breakglass timeout.
func (p *SettingsProvider) SessionPolicy(ctx context.Context, user *models.User) (models.SessionPolicy, error) {
	policy := models.SessionPolicy{Kind: models.SessionNormal, Timeout: DefaultUserSessionTimeout}
	name := models.SettingUserSessionTimeout
	if user.IsBreakglass() {
		policy = models.SessionPolicy{Kind: models.SessionBreakglass, Timeout: DefaultBreakglassSessionTimeout}
		name = models.SettingBreakglassSessionTimeout
	}

	minutes, err := p.Int(ctx, name)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return policy, nil
	case err != nil:
		return policy, fmt.Errorf("reading %s: %w", name, err)
	case minutes <= 0:
		return policy, fmt.Errorf("%s must be positive, got %d", name, minutes)
	}

	policy.Timeout = time.Duration(minutes) * time.Minute
	return policy, nil
}
