package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"userdeck/common"
)

func dsnFromEnv() string {
	if s := common.Env("USERDECK_DB_DSN", ""); s != "" {
		return s
	}
	host := common.Env("USERDECK_DB_HOST", "postgres")
	port := common.Env("USERDECK_DB_PORT", "5432")
	user := common.Env("USERDECK_DB_USER", "userdeck")
	pass := common.Env("USERDECK_DB_PASS", "userdeck")
	name := common.Env("USERDECK_DB_NAME", "userdeck")
	ssl := common.Env("USERDECK_DB_SSLMODE", "disable") // "require" if you run TLS
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, name, ssl)
}

// InitDBFromEnv connects the shared pool and applies pending migrations.
func InitDBFromEnv(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(dsnFromEnv())
	if err != nil {
		return err
	}
	if n, err := strconv.Atoi(common.Env("USERDECK_DB_MAX_CONNS", "12")); err == nil {
		cfg.MaxConns = int32(n)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return err
	}
	common.DB = pool
	common.InfoLog("db: connected to Postgres (max_conns=%d)", cfg.MaxConns)

	if common.EnvBool("USERDECK_DB_MIGRATE", "true") {
		if err := runMigrations(ctx, pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	return nil
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version int PRIMARY KEY)`); err != nil {
		return err
	}
	var current int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version),0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	type mig struct {
		v    int
		name string
	}
	var list []mig
	for _, e := range entries {
		n := e.Name()
		if !strings.HasSuffix(n, ".sql") {
			continue
		}
		// files like 001_init.sql, 002_more.sql
		base := strings.SplitN(n, "_", 2)[0]
		v, _ := strconv.Atoi(strings.TrimLeft(base, "0"))
		if v == 0 && base != "0" {
			continue
		}
		if v > current {
			list = append(list, mig{v: v, name: n})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].v < list[j].v })

	for _, m := range list {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + m.name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, m.v); err != nil {
			return err
		}
		common.InfoLog("db: applied migration %s", m.name)
	}

	return tx.Commit(ctx)
}
