package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Credentials is one row of public.credentials. Payload is the sealed
// secret bundle (hex(iv):hex(ct), or plaintext JSON when no key is
// configured). The broker column is the canonical spelling; rows imported
// from systems that spell it brokerName are normalised on ingest.
type Credentials struct {
	Id            string        `db:"id"`
	UserId        string        `db:"user_id"`
	Name          string        `db:"name"`
	Broker        string        `db:"broker"`
	Payload       string        `db:"payload"`
	IsDemo        bool          `db:"is_demo"`
	MaxConcurrent sql.NullInt64 `db:"max_concurrent"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

type CredentialsModel interface {
	Insert(ctx context.Context, data *Credentials) error
	FindOne(ctx context.Context, id string) (*Credentials, error)
	Update(ctx context.Context, data *Credentials) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]Credentials, error)
}

type defaultCredentialsModel struct {
	conn sqlx.SqlConn
}

func NewCredentialsModel(conn sqlx.SqlConn) CredentialsModel {
	return &defaultCredentialsModel{conn: conn}
}

const credentialsColumns = `id, user_id, name, broker, payload, is_demo, max_concurrent, created_at, updated_at`

func (m *defaultCredentialsModel) Insert(ctx context.Context, data *Credentials) error {
	query := `INSERT INTO public.credentials (` + credentialsColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.UserId, data.Name, data.Broker, data.Payload,
		data.IsDemo, data.MaxConcurrent, data.CreatedAt, data.UpdatedAt)
	if err != nil {
		return fmt.Errorf("credentials.Insert: %w", err)
	}
	return nil
}

func (m *defaultCredentialsModel) FindOne(ctx context.Context, id string) (*Credentials, error) {
	query := `SELECT ` + credentialsColumns + ` FROM public.credentials WHERE id = $1 LIMIT 1`
	var row Credentials
	err := m.conn.QueryRowCtx(ctx, &row, query, id)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("credentials.FindOne: %w", err)
	}
}

func (m *defaultCredentialsModel) Update(ctx context.Context, data *Credentials) error {
	query := `UPDATE public.credentials
SET name = $2, broker = $3, payload = $4, is_demo = $5, max_concurrent = $6, updated_at = $7
WHERE id = $1`
	_, err := m.conn.ExecCtx(ctx, query,
		data.Id, data.Name, data.Broker, data.Payload, data.IsDemo, data.MaxConcurrent, time.Now())
	if err != nil {
		return fmt.Errorf("credentials.Update: %w", err)
	}
	return nil
}

func (m *defaultCredentialsModel) Delete(ctx context.Context, id string) error {
	_, err := m.conn.ExecCtx(ctx, `DELETE FROM public.credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("credentials.Delete: %w", err)
	}
	return nil
}

func (m *defaultCredentialsModel) ListByUser(ctx context.Context, userID string) ([]Credentials, error) {
	query := `SELECT ` + credentialsColumns + ` FROM public.credentials WHERE user_id = $1 ORDER BY created_at`
	var rows []Credentials
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("credentials.ListByUser: %w", err)
	}
	return rows, nil
}
