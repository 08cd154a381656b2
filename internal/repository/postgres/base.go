package postgres

import (
	"github.com/jmoiron/sqlx"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx, so every repository
// can run either standalone or inside a unit of work.
type queryer interface {
	sqlx.ExtContext
}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db queryer
}

func NewBaseRepository(db queryer) BaseRepository {
	return BaseRepository{db: db}
}
