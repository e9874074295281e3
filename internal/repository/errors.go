package repository

import (
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"remnabot/internal/entities"
)

const uniqueViolation = "23505"

// translate maps driver errors onto the entities sentinels.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(entities.ErrNotFound, op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Wrap(entities.ErrConflict, op)
	}
	return errors.Wrap(err, op)
}

// expectOne turns a zero-rows update into notFound.
func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
