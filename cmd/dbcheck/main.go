// Command dbcheck pings the configured Postgres database and lists its
// foreign keys.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"homeledger/pkg/config"
	"homeledger/pkg/logging"
)

func main() {
	dsnFlag := flag.String("dsn", "", "Postgres DSN (default: DB_DSN)")
	timeout := flag.Duration("timeout", 5*time.Second, "connect timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	dsn := *dsnFlag
	if dsn == "" {
		dsn = cfg.DBDSN
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := run(ctx, dsn); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var version string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		return fmt.Errorf("server version: %w", err)
	}
	log.Info().Str("server_version", version).Dur("ping", time.Since(start)).Msg("database reachable")

	rows, err := db.QueryContext(ctx, `
		SELECT
		  con.conname AS constraint_name,
		  rel.relname AS table_name,
		  string_agg(att.attname, ',' ORDER BY u.ord) AS src_columns,
		  confrel.relname AS referenced_table,
		  string_agg(att2.attname, ',' ORDER BY u.ord) AS ref_columns,
		  pg_get_constraintdef(con.oid) AS definition
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_class confrel ON confrel.oid = con.confrelid
		JOIN unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord) ON true
		JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = u.attnum
		LEFT JOIN unnest(con.confkey) WITH ORDINALITY AS v(confkey, ord2) ON v.ord2 = u.ord
		LEFT JOIN pg_attribute att2 ON att2.attrelid = con.confrelid AND att2.attnum = v.confkey
		WHERE con.contype = 'f'
		GROUP BY con.oid, con.conname, rel.relname, confrel.relname
		ORDER BY rel.relname, con.conname;
	`)
	if err != nil {
		return fmt.Errorf("query constraints: %w", err)
	}
	defer rows.Close()

	fmt.Println("Foreign keys:")
	for rows.Next() {
		var cname, table, reftable, def string
		var srcCols, refCols sql.NullString
		if err := rows.Scan(&cname, &table, &srcCols, &reftable, &refCols, &def); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		fmt.Printf("- %s: %s(%s) -> %s(%s)\n    def: %s\n", cname, table, srcCols.String, reftable, refCols.String, def)
	}
	return rows.Err()
}
