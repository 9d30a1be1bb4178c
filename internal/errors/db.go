package errors

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors to AppError instances:
// sql.ErrNoRows / pgx.ErrNoRows → NotFound, unique violations → Conflict,
// foreign key violations → Precondition, check and NOT NULL violations →
// Validation, context timeouts/cancellations → Timeout/Canceled.
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database operation was canceled", Cause: err}
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return err
}

// mapPgError maps PostgreSQL-specific errors to AppError instances.
func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "a record with this id already exists",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	case pgerrcode.ForeignKeyViolation:
		return &AppError{
			Code:    ErrCodePrecondition,
			Message: "a referenced record does not exist",
			Cause:   pgErr,
		}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "invalid field value",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "a database error occurred",
			Cause:   pgErr,
		}
	}
}
