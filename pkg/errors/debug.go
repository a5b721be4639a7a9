package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLState is the driver-neutral view of a postgres error.
type SQLState struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Class returns the two-character SQLSTATE class, e.g. "23" for integrity
// violations or "40" for transaction rollbacks.
func (s SQLState) Class() string {
	if len(s.Code) < 2 {
		return ""
	}
	return s.Code[:2]
}

// ErrorDump is a log-oriented snapshot of an error chain.
type ErrorDump struct {
	Top   string    `json:"top"`
	Code  Code      `json:"code,omitempty"`
	Chain []string  `json:"chain,omitempty"`
	SQL   *SQLState `json:"sql,omitempty"`
}

// FindSQLState extracts postgres fields from either pgx or lib/pq errors.
func FindSQLState(err error) (SQLState, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return SQLState{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return SQLState{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return SQLState{}, false
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{Top: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if state, ok := FindSQLState(err); ok {
		d.SQL = &state
	}
	return d
}

// Fields flattens the dump for structured loggers. SQL fields are only
// present when the chain carried a postgres error.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Top,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if d.SQL != nil {
		fields["sqlstate"] = d.SQL.Code
		fields["sqlstate_class"] = d.SQL.Class()
		for key, val := range map[string]string{
			"pg_constraint": d.SQL.Constraint,
			"pg_table":      d.SQL.Table,
			"pg_column":     d.SQL.Column,
			"pg_detail":     d.SQL.Detail,
			"pg_message":    d.SQL.Message,
		} {
			if val != "" {
				fields[key] = val
			}
		}
	}
	return fields
}
