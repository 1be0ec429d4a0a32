package errx

import (
	"database/sql"
	"errors"
	"net/http"
)

// WrapPostgres maps database errors to AppError with appropriate status codes.
func WrapPostgres(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return New(err, http.StatusNotFound, "record not found")
	}

	return New(err, http.StatusBadGateway, PostgresErrorMessage)
}
