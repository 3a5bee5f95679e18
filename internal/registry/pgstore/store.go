// Package pgstore persists ledger entries in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"sort"

	"github.com/Mohsinsiddi/ctfactory/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrDuplicateToken is returned when an address or nonce is already stored.
var ErrDuplicateToken = errors.New("token already stored")

const pgErrUniqueViolation = "23505"

// Store is a registry.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded migrations in file-name order.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := migrations.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
	}
	return nil
}

// Load returns every entry in commit order.
func (s *Store) Load(ctx context.Context) ([]registry.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT nonce, token_address, name, symbol, creator, total_supply::text
		FROM token_records
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query token records: %w", err)
	}
	defer rows.Close()

	var out []registry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token records: %w", err)
	}
	return out, nil
}

// Append inserts e.
func (s *Store) Append(ctx context.Context, e registry.Entry) error {
	r := e.Record
	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_records (nonce, token_address, name, symbol, creator, total_supply)
		VALUES ($1, $2, $3, $4, $5, $6::numeric)
	`,
		int64(e.Nonce),
		r.TokenAddress.Hex(),
		r.Name,
		r.Symbol,
		r.Creator.Hex(),
		r.TotalSupply.String(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateToken, r.TokenAddress.Hex())
		}
		return fmt.Errorf("insert token record: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanEntry(row pgx.Row) (registry.Entry, error) {
	var (
		nonce                 int64
		addr, creator, supply string
		e                     registry.Entry
	)
	if err := row.Scan(&nonce, &addr, &e.Record.Name, &e.Record.Symbol, &creator, &supply); err != nil {
		return e, fmt.Errorf("scan token record: %w", err)
	}
	total, ok := new(big.Int).SetString(supply, 10)
	if !ok {
		return e, fmt.Errorf("token %s: bad supply %q", addr, supply)
	}
	e.Nonce = uint64(nonce)
	e.Record.TokenAddress = common.HexToAddress(addr)
	e.Record.Creator = common.HexToAddress(creator)
	e.Record.TotalSupply = total
	return e, nil
}

var _ registry.Store = (*Store)(nil)
