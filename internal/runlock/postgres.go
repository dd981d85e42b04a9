package runlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// advisoryMajor namespaces stage locks in pg_try_advisory_lock(major, minor).
const advisoryMajor = 4210

// Postgres holds a session advisory lock on a dedicated connection.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Acquire(ctx context.Context, name string) (Release, bool, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("advisory lock connection: %w", err)
	}
	minor := int32(xxhash.Sum64String(name))

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1, $2)", advisoryMajor, minor).Scan(&locked); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !locked {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1, $2)", advisoryMajor, minor)
		return errors.Join(err, conn.Close())
	}
	return release, true, nil
}
