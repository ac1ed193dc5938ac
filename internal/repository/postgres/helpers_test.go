package postgres

import "github.com/jackc/pgx/v5/pgconn"

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func fkViolation() error {
	return &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}
}
