package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Users is one row of public.users.
type Users struct {
	Id        string         `db:"id"`
	ClerkId   sql.NullString `db:"clerk_id"`
	Email     string         `db:"email"`
	CreatedAt time.Time      `db:"created_at"`
}

type UsersModel interface {
	Insert(ctx context.Context, data *Users) error
	FindOne(ctx context.Context, id string) (*Users, error)
	FindByClerkId(ctx context.Context, clerkID string) (*Users, error)
}

type defaultUsersModel struct {
	conn sqlx.SqlConn
}

func NewUsersModel(conn sqlx.SqlConn) UsersModel {
	return &defaultUsersModel{conn: conn}
}

const usersColumns = `id, clerk_id, email, created_at`

func (m *defaultUsersModel) Insert(ctx context.Context, data *Users) error {
	query := `INSERT INTO public.users (` + usersColumns + `) VALUES ($1, $2, $3, $4)`
	_, err := m.conn.ExecCtx(ctx, query, data.Id, data.ClerkId, data.Email, data.CreatedAt)
	if err != nil {
		return fmt.Errorf("users.Insert: %w", err)
	}
	return nil
}

func (m *defaultUsersModel) FindOne(ctx context.Context, id string) (*Users, error) {
	query := `SELECT ` + usersColumns + ` FROM public.users WHERE id = $1 LIMIT 1`
	var row Users
	err := m.conn.QueryRowCtx(ctx, &row, query, id)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("users.FindOne: %w", err)
	}
}

func (m *defaultUsersModel) FindByClerkId(ctx context.Context, clerkID string) (*Users, error) {
	query := `SELECT ` + usersColumns + ` FROM public.users WHERE clerk_id = $1 LIMIT 1`
	var row Users
	err := m.conn.QueryRowCtx(ctx, &row, query, clerkID)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("users.FindByClerkId: %w", err)
	}
}
