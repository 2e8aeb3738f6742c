// Package repomanager vends repository implementations bound to a database
// handle, so services can run them against *sql.DB or inside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tunevault/internal/dbx"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Files(db dbx.DBTX) files.Repository
}
