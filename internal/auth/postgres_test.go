package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	exists bool
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.exists
	return nil
}

type fakeQuerier struct {
	row  fakeRow
	args []any
	sql  string
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return q.row
}

func TestPostgresValidatorMember(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{exists: true}}
	v := NewPostgresValidator(q)

	ok, err := v.Validate(context.Background(), "tok", "abc-def")
	if err != nil || !ok {
		t.Fatalf("expected member, got %v %v", ok, err)
	}
	if len(q.args) != 2 || q.args[0] != "tok" || q.args[1] != "abc-def" {
		t.Fatalf("unexpected query args %v", q.args)
	}
}

func TestPostgresValidatorNotMember(t *testing.T) {
	v := NewPostgresValidator(&fakeQuerier{row: fakeRow{exists: false}})
	ok, err := v.Validate(context.Background(), "tok", "abc-def")
	if err != nil || ok {
		t.Fatalf("expected rejection, got %v %v", ok, err)
	}
}

func TestPostgresValidatorEmptyTokenSkipsQuery(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{exists: true}}
	ok, err := NewPostgresValidator(q).Validate(context.Background(), "", "abc-def")
	if err != nil || ok {
		t.Fatalf("empty token must be rejected, got %v %v", ok, err)
	}
	if q.sql != "" {
		t.Fatal("empty token must not hit the database")
	}
}

func TestPostgresValidatorError(t *testing.T) {
	boom := errors.New("connection refused")
	v := NewPostgresValidator(&fakeQuerier{row: fakeRow{err: boom}})
	_, err := v.Validate(context.Background(), "tok", "abc-def")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
