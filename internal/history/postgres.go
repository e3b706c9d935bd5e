package history

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"driverhub/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the deliveries table if missing (dev helper).
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS deliveries (
        id UUID PRIMARY KEY,
        rider_id BIGINT NOT NULL,
        order_id TEXT NOT NULL,
        shop_name TEXT NOT NULL DEFAULT '',
        customer_name TEXT NOT NULL DEFAULT '',
        distance DOUBLE PRECISION NOT NULL DEFAULT 0,
        picked_up_at TIMESTAMPTZ,
        completed_at TIMESTAMPTZ NOT NULL
    )`)
	return err
}

func (p *Postgres) Append(ctx context.Context, riderID int64, rec model.DeliveryRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, rider_id, order_id, shop_name, customer_name, distance, picked_up_at, completed_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		id, riderID, rec.OrderID, rec.ShopName, rec.CustomerName, rec.Distance, rec.PickedUpAt, rec.CompletedAt)
	return err
}

func (p *Postgres) List(ctx context.Context, riderID int64, limit int) ([]model.DeliveryRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, order_id, shop_name, customer_name, distance, picked_up_at, completed_at
         FROM deliveries WHERE rider_id=$1 ORDER BY completed_at DESC LIMIT $2`, riderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DeliveryRecord{}
	for rows.Next() {
		var rec model.DeliveryRecord
		var pickedUp sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.ShopName, &rec.CustomerName, &rec.Distance, &pickedUp, &rec.CompletedAt); err != nil {
			return nil, err
		}
		if pickedUp.Valid {
			t := pickedUp.Time
			rec.PickedUpAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
