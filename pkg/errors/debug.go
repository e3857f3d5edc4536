package errors

import (
	"errors"
	"fmt"

	pgconnv1 "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetails are the server-side fields of a Postgres error, whichever driver
// raised it.
type PGDetails struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

// Postgres extracts PGDetails from pgx v5, pgconn v1 or lib/pq errors.
func Postgres(err error) (PGDetails, bool) {
	if v5, ok := asType[*pgconn.PgError](err); ok {
		return PGDetails{v5.Code, v5.ConstraintName, v5.TableName, v5.ColumnName, v5.Detail, v5.Message}, true
	}
	if v1, ok := asType[*pgconnv1.PgError](err); ok {
		return PGDetails{v1.Code, v1.ConstraintName, v1.TableName, v1.ColumnName, v1.Detail, v1.Message}, true
	}
	if pqErr, ok := asType[*pq.Error](err); ok {
		return PGDetails{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return PGDetails{}, false
}

func asType[T error](err error) (T, bool) {
	var target T
	if err == nil {
		return target, false
	}
	ok := errors.As(err, &target)
	return target, ok
}

// ErrorDump is the diagnostic view of an error logged next to 5xx responses.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	PG         PGDetails
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Code: As(err).codeOrEmpty()}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG, _ = Postgres(err)
	return d
}
