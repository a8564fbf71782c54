package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	sql  string
	args func(o dbOptions) []any
}

type dbOptions struct {
	Limit     int
	SinceTick uint64
	ClientID  string
	Code      string
}

var dbQueries = map[string]dbQuery{
	"meta": {
		sql:  `SELECT key, value FROM meta ORDER BY key`,
		args: func(dbOptions) []any { return nil },
	},
	"configs": {
		sql:  `SELECT name, digest, json, updated_at FROM configs ORDER BY name`,
		args: func(dbOptions) []any { return nil },
	},
	"snapshots": {
		sql:  `SELECT tick, path, seed, mesh_name, players, sheep FROM snapshots WHERE tick >= ? ORDER BY tick DESC LIMIT ?`,
		args: func(o dbOptions) []any { return []any{o.SinceTick, o.Limit} },
	},
	"ticks": {
		sql:  `SELECT tick, digest, joins, leaves, disconnects, inputs, players, sheep, walk_exhausted FROM ticks WHERE tick >= ? ORDER BY tick LIMIT ?`,
		args: func(o dbOptions) []any { return []any{o.SinceTick, o.Limit} },
	},
	"exhausted": {
		sql:  `SELECT tick, walk_exhausted, players, sheep FROM ticks WHERE walk_exhausted > 0 AND tick >= ? ORDER BY tick LIMIT ?`,
		args: func(o dbOptions) []any { return []any{o.SinceTick, o.Limit} },
	},
	"joins": {
		sql:  `SELECT tick, client_id, name FROM joins WHERE tick >= ? AND (? = '' OR client_id = ?) ORDER BY tick LIMIT ?`,
		args: func(o dbOptions) []any { return []any{o.SinceTick, o.ClientID, o.ClientID, o.Limit} },
	},
	"leaves": {
		sql:  `SELECT tick, client_id FROM leaves WHERE tick >= ? AND (? = '' OR client_id = ?) ORDER BY tick LIMIT ?`,
		args: func(o dbOptions) []any { return []any{o.SinceTick, o.ClientID, o.ClientID, o.Limit} },
	},
	"disconnects": {
		sql:  `SELECT tick, client_id, code, reason FROM disconnects WHERE tick >= ? AND (? = '' OR code = ?) ORDER BY tick LIMIT ?`,
		args: func(o dbOptions) []any { return []any{o.SinceTick, o.Code, o.Code, o.Limit} },
	},
	"audits": {
		sql:  `SELECT tick, client_id, action, reason FROM audits WHERE tick >= ? AND (? = '' OR client_id = ?) ORDER BY tick, seq LIMIT ?`,
		args: func(o dbOptions) []any { return []any{o.SinceTick, o.ClientID, o.ClientID, o.Limit} },
	},
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	since := fs.Uint64("since_tick", 0, "only rows at or after this tick")
	clientID := fs.String("client", "", "client_id filter (joins, leaves, audits)")
	code := fs.String("code", "", "error code filter (disconnects)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	rows, err := queryRows(db, q, dbOptions{Limit: *limit, SinceTick: *since, ClientID: *clientID, Code: *code})
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

// queryRows runs one named query and returns each row keyed by column name.
func queryRows(db *sql.DB, name string, o dbOptions) ([]map[string]any, error) {
	q, ok := dbQueries[name]
	if !ok {
		return nil, fmt.Errorf("unknown query %q (want one of %s)", name, strings.Join(queryNames(), ", "))
	}
	if o.Limit <= 0 {
		o.Limit = 20
	}
	rows, err := db.Query(q.sql, q.args(o)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[c] = string(b)
				continue
			}
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryNames() []string {
	return []string{"meta", "configs", "snapshots", "ticks", "exhausted", "joins", "leaves", "disconnects", "audits"}
}
