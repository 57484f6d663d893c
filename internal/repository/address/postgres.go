package address

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger)}
}

func (r *postgresRepo) Create(ctx context.Context, a domain.Address) (*domain.Address, error) {
	const q = `
INSERT INTO addresses (id, owner_id, full_name, phone, street_name, city, zone)
VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7)
RETURNING id, owner_id, full_name, phone, street_name, city, zone, created_at
`
	out, err := scanAddress(r.pool.QueryRow(ctx, q,
		a.ID,
		a.OwnerID,
		a.FullName,
		a.Phone,
		a.StreetName,
		a.City,
		strings.ToLower(strings.TrimSpace(a.Zone)),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("address repo: create", zap.String("owner_id", a.OwnerID), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Address, error) {
	const q = `
SELECT id, owner_id, full_name, phone, street_name, city, zone, created_at
FROM addresses
WHERE id = $1
`
	out, err := scanAddress(r.pool.QueryRow(ctx, q, id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Error("address repo: get", zap.String("id", id), zap.Error(err))
	}
	return out, err
}

func scanAddress(row pgx.Row) (*domain.Address, error) {
	var a domain.Address
	if err := row.Scan(&a.ID, &a.OwnerID, &a.FullName, &a.Phone, &a.StreetName, &a.City, &a.Zone, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
