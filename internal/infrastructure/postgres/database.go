package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var dbTracer = otel.Tracer("ledgersync.db")

// maxStatementLen caps the statement text attached to a span.
const maxStatementLen = 256

// DB wraps *sql.DB so every statement is traced.
type DB struct {
	*sql.DB
}

// rowScanner is satisfied by *sql.Rows and *tracedRow.
type rowScanner interface {
	Scan(dest ...any) error
}

// New opens a pooled connection to connStr and pings it.
func New(connStr string) (*DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Wrap adapts an already opened handle, such as a sqlmock connection.
func Wrap(db *sql.DB) *DB {
	return &DB{db}
}

func (db *DB) startSpan(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return dbTracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", sqlVerb(query)),
			attribute.String("db.statement", redactStatement(query)),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// QueryContext wraps sql.DB.QueryContext with tracing.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := db.startSpan(ctx, "db.Query", query)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	endSpan(span, err)
	return rows, err
}

// ExecContext wraps sql.DB.ExecContext with tracing.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := db.startSpan(ctx, "db.Exec", query)
	result, err := db.DB.ExecContext(ctx, query, args...)
	endSpan(span, err)
	return result, err
}

// QueryRowContext wraps sql.DB.QueryRowContext with tracing. sql.Row
// reports its error from Scan, so the span stays open until then.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	ctx, span := db.startSpan(ctx, "db.QueryRow", query)
	return &tracedRow{row: db.DB.QueryRowContext(ctx, query, args...), span: span}
}

type tracedRow struct {
	row  *sql.Row
	span trace.Span
}

func (r *tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.span != nil {
		endSpan(r.span, err)
		r.span = nil
	}
	return err
}

// redactStatement collapses whitespace and replaces literals with '?' so
// values never reach a trace. $N placeholders are kept.
func redactStatement(q string) string {
	var b strings.Builder
	b.Grow(len(q))

	space := false
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			space = b.Len() > 0
			continue
		case space:
			b.WriteByte(' ')
			space = false
		}

		switch {
		case c == '\'':
			// skip to the closing quote, honouring '' escapes
			for i++; i < len(q); i++ {
				if q[i] != '\'' {
					continue
				}
				if i+1 < len(q) && q[i+1] == '\'' {
					i++
					continue
				}
				break
			}
			b.WriteString("'?'")
		case c == '$':
			b.WriteByte(c)
			for i+1 < len(q) && isDigit(q[i+1]) {
				i++
				b.WriteByte(q[i])
			}
		case isDigit(c) && (i == 0 || !isIdentChar(q[i-1])):
			for i+1 < len(q) && (isDigit(q[i+1]) || q[i+1] == '.') {
				i++
			}
			b.WriteByte('?')
		default:
			b.WriteByte(c)
		}
	}

	s := b.String()
	if len(s) > maxStatementLen {
		return s[:maxStatementLen] + "..."
	}
	return s
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// sqlVerb returns the statement's leading keyword, upper-cased.
func sqlVerb(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
