package storage

import (
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/storyforge/storyforge/internal/config"
)

// Connect opens a pooled Postgres connection through pgdriver and wraps
// it in a bun.DB, grounded on the teacher's dockertest connection setup
// (pgdriver.NewConnector + sql.OpenDB + bun.NewDB(sqldb, pgdialect.New())).
func Connect(cfg config.DatabaseConfig) (*bun.DB, error) {
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxConnections)
	sqldb.SetMaxIdleConns(cfg.MinConnections)
	sqldb.SetConnMaxIdleTime(cfg.MaxIdleTime)
	sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
