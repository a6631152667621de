package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

var ErrInvalidTable = errors.New("store: table must be a plain SQL identifier")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidTable reports whether name is safe to splice into SQL as a table.
func ValidTable(name string) bool { return identRe.MatchString(name) }

// TimescaleStore persists samples to a (time, bpm) table in Postgres or
// TimescaleDB and serves history queries from it.
type TimescaleStore struct {
	db         *sql.DB
	tableName  string
	hypertable bool
}

type Option func(*TimescaleStore)

// WithHypertable makes Migrate convert the table into a Timescale
// hypertable partitioned on time.
func WithHypertable() Option {
	return func(t *TimescaleStore) { t.hypertable = true }
}

func NewTimescaleStore(db *sql.DB, table string, opts ...Option) (*TimescaleStore, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	t := &TimescaleStore{db: db, tableName: table}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Open prepares a lib/pq connection pool for connString. No connection is
// made until the first query or Ping.
func Open(connString, table string, opts ...Option) (*TimescaleStore, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	return NewTimescaleStore(db, table, opts...)
}

// Ping checks that the database is reachable.
func (t *TimescaleStore) Ping(ctx context.Context) error {
	if err := t.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (t *TimescaleStore) Name() string { return "timescaledb" }

func (t *TimescaleStore) Migrate(ctx context.Context) error {
	ddl := "CREATE TABLE IF NOT EXISTS " + t.tableName +
		" (time TIMESTAMPTZ NOT NULL PRIMARY KEY, bpm DOUBLE PRECISION NOT NULL)"
	if _, err := t.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", t.tableName, err)
	}
	if t.hypertable {
		if _, err := t.db.ExecContext(ctx,
			"SELECT create_hypertable($1, 'time', if_not_exists => TRUE)", t.tableName); err != nil {
			return fmt.Errorf("create hypertable %s: %w", t.tableName, err)
		}
	}
	return nil
}

// WriteBatch inserts samples in one statement. Rows whose time already
// exists are skipped so WAL replays stay idempotent.
func (t *TimescaleStore) WriteBatch(samples []domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (time, bpm) VALUES ")

	args := make([]any, 0, len(samples)*2)
	for i, s := range samples {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "($%d,$%d)", len(args)+1, len(args)+2)
		args = append(args, s.Time, s.BPM)
	}
	b.WriteString(" ON CONFLICT (time) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

func (t *TimescaleStore) Range(ctx context.Context, from, to time.Time) ([]domain.Sample, error) {
	rows, err := t.db.QueryContext(ctx,
		"SELECT time, bpm FROM "+t.tableName+" WHERE time >= $1 AND time <= $2 ORDER BY time ASC",
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Sample{}
	for rows.Next() {
		var s domain.Sample
		if err := rows.Scan(&s.Time, &s.BPM); err != nil {
			return nil, err
		}
		s.Time = s.Time.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Stats aggregates bpm over [from, to]. An empty range yields zeros.
func (t *TimescaleStore) Stats(ctx context.Context, from, to time.Time) (domain.Stats, error) {
	var minV, maxV, avgV sql.NullFloat64
	err := t.db.QueryRowContext(ctx,
		"SELECT MIN(bpm), MAX(bpm), AVG(bpm) FROM "+t.tableName+" WHERE time >= $1 AND time <= $2",
		from, to).Scan(&minV, &maxV, &avgV)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{Min: minV.Float64, Max: maxV.Float64, Avg: avgV.Float64}, nil
}

func (t *TimescaleStore) Close() error { return t.db.Close() }

var (
	_ ports.Sink         = (*TimescaleStore)(nil)
	_ ports.HistoryStore = (*TimescaleStore)(nil)
)
