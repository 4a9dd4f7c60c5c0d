package store

import (
	"context"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// mockDB implements DB with testify expectations on Exec, Query and QueryRow.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// columns maps a scan position to the value stored into it. Positions not
// listed keep their zero value.
type columns map[int]any

func (c columns) scan(dest ...any) error {
	for i, v := range c {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

// stubRow is a single pgx.Row. err, when set, is returned instead of scanning.
type stubRow struct {
	cols columns
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.cols.scan(dest...)
}

// stubRows yields one row per entry in rows.
type stubRows struct {
	rows []columns
	next int
	err  error
}

func rowsOf(rows ...columns) *stubRows {
	return &stubRows{rows: rows}
}

func (r *stubRows) Next() bool {
	return r.next < len(r.rows)
}

func (r *stubRows) Scan(dest ...any) error {
	if r.next >= len(r.rows) {
		return nil
	}
	cols := r.rows[r.next]
	r.next++
	return cols.scan(dest...)
}

func (r *stubRows) Err() error                                   { return r.err }
func (r *stubRows) Close()                                       {}
func (r *stubRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }
