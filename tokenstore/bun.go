package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	authsphere "github.com/authsphere/go-authsphere"
)

// TokenModel is the Bun model for persisted session tokens, one row per
// scope.
type TokenModel struct {
	bun.BaseModel `bun:"table:session_tokens"`

	Scope     string    `bun:"scope,pk"`
	Token     string    `bun:"token,notnull"`
	UpdatedAt time.Time `bun:"updated_at,default:current_timestamp"`
}

// Bun persists the token in a database table.
type Bun struct {
	db      *bun.DB
	scope   string
	timeout time.Duration
}

// NewBun creates a database-backed store. Scope is any stable string
// identifying the session, typically the backend base URL.
func NewBun(db *bun.DB, scope string) *Bun {
	return &Bun{
		db:      db,
		scope:   scope,
		timeout: 5 * time.Second,
	}
}

// OpenSQLite opens a SQLite-backed Bun handle for NewBun and creates the
// token table when missing.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("token store: open database: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.NewCreateTable().Model((*TokenModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("token store: create table: %w", err)
	}

	return db, nil
}

func (b *Bun) Get() (string, error) {
	ctx, cancel := b.opCtx()
	defer cancel()

	var model TokenModel
	err := b.db.NewSelect().
		Model(&model).
		Where("scope = ?", b.scope).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("token store: read failed: %w", err)
	}

	return model.Token, nil
}

func (b *Bun) Set(token string) error {
	ctx, cancel := b.opCtx()
	defer cancel()

	model := &TokenModel{
		Scope:     b.scope,
		Token:     token,
		UpdatedAt: time.Now(),
	}

	_, err := b.db.NewInsert().
		Model(model).
		On("CONFLICT (scope) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("token store: write failed: %w", err)
	}

	return nil
}

func (b *Bun) Clear() error {
	ctx, cancel := b.opCtx()
	defer cancel()

	_, err := b.db.NewDelete().
		Model((*TokenModel)(nil)).
		Where("scope = ?", b.scope).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("token store: clear failed: %w", err)
	}

	return nil
}

func (b *Bun) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

var _ authsphere.TokenStore = (*Bun)(nil)
