// Package migrate brings the database schema up to date at startup from the
// SQL files embedded in the migrations package.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/empire-compass/compass-server/migrations"
)

// Up applies all pending migrations. It opens a short-lived database/sql
// connection over the pgx stdlib driver; the server's pgxpool is created
// separately after the schema is current.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
