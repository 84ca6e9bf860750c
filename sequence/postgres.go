package sequence

import (
	"context"
)

const sqlNextValue = `SELECT nextval($1)`

// Getter is the part of sqlx.DB we fetch sequence values with
type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Postgres fetches values from Postgres sequences
type Postgres struct {
	db Getter
}

// NewPostgres creates a new Postgres sequence source
func NewPostgres(db Getter) *Postgres {
	return &Postgres{db: db}
}

// NextValue returns the next value of the named sequence
func (p *Postgres) NextValue(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := p.db.GetContext(ctx, &id, sqlNextValue, name); err != nil {
		return 0, err
	}
	return id, nil
}
