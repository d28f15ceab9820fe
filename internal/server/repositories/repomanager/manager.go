package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/requestmanager/internal/dbx"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/permissions"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/schema"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/settings"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same service
// code runs against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Permissions(db dbx.DBTX) permissions.Repository
	Settings(db dbx.DBTX) settings.Repository
	Schema(db dbx.DBTX) schema.Repository
}
