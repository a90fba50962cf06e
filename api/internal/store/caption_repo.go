package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

type CaptionRecord struct {
	ID        int64     `json:"id"`
	Engine    string    `json:"engine"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Captions  string    `json:"captions"`
	CreatedAt time.Time `json:"created_at"`
}

type CaptionRepo struct{ DB *sql.DB }

func NewCaptionRepo(db *sql.DB) *CaptionRepo { return &CaptionRepo{DB: db} }

// Open connects to Postgres through the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

const schema = `
create table if not exists caption_history (
	id         bigserial primary key,
	engine     text not null,
	model      text not null,
	prompt     text not null,
	captions   text not null,
	created_at timestamptz not null default now()
)`

func (r *CaptionRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

// Insert stores one successful generation and returns its id.
func (r *CaptionRepo) Insert(ctx context.Context, rec CaptionRecord) (int64, error) {
	const q = `
insert into caption_history(engine, model, prompt, captions)
values ($1,$2,$3,$4)
returning id`
	var id int64
	if err := r.DB.QueryRowContext(ctx, q, rec.Engine, rec.Model, rec.Prompt, rec.Captions).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Recent returns up to limit records, newest first.
func (r *CaptionRepo) Recent(ctx context.Context, limit int) ([]CaptionRecord, error) {
	const q = `select id, engine, model, prompt, captions, created_at
	           from caption_history
	           order by created_at desc, id desc
	           limit $1`
	rows, err := r.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CaptionRecord{}
	for rows.Next() {
		var rec CaptionRecord
		if err := rows.Scan(&rec.ID, &rec.Engine, &rec.Model, &rec.Prompt, &rec.Captions, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
