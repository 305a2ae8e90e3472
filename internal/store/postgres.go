package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/signal-monitor/internal/model"
)

// PostgresStore implements SignalStore and Directory using PostgreSQL as
// the source of truth. Prices are stored as NUMERIC for exact decimal
// precision; the lifecycle is a jsonb document guarded by a version column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const signalColumns = `id, trader_id, username, pair, direction,
		        leverage::TEXT, entry::TEXT, stop::TEXT, targets,
		        strategy, risk, lifecycle, version, created_at`

func (s *PostgresStore) CreateSignal(ctx context.Context, sig *model.Signal) error {
	targets, err := json.Marshal(sig.Targets)
	if err != nil {
		return fmt.Errorf("encode targets: %w", err)
	}
	lc, err := json.Marshal(sig.Lifecycle)
	if err != nil {
		return fmt.Errorf("encode lifecycle: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO signals (id, trader_id, username, pair, direction, leverage, entry, stop,
		                      targets, strategy, risk, lifecycle, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
		         $9::JSONB, $10, $11, $12::JSONB, $13, $14)`,
		sig.ID, sig.TraderID, sig.Username, sig.Pair, string(sig.Direction),
		sig.Leverage.String(), sig.Entry.String(), sig.Stop.String(),
		string(targets), sig.Strategy, sig.Risk, string(lc), sig.Version, sig.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetSignal(ctx context.Context, id string) (*model.Signal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	return sig, nil
}

func (s *PostgresStore) FindCandidates(ctx context.Context) ([]model.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalColumns+`
		 FROM signals
		 WHERE NOT COALESCE((lifecycle->>'is_closed')::BOOLEAN, FALSE)
		   AND NOT COALESCE((lifecycle->>'is_cancelled')::BOOLEAN, FALSE)
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ApplyUpdate(ctx context.Context, id string, version int64, lc model.Lifecycle) (*model.Signal, error) {
	data, err := json.Marshal(lc)
	if err != nil {
		return nil, fmt.Errorf("encode lifecycle: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE signals
		 SET lifecycle = $3::JSONB, version = version + 1
		 WHERE id = $1 AND version = $2
		 RETURNING `+signalColumns,
		id, version, string(data))
	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missOrConflict(ctx, id, version)
	}
	if err != nil {
		return nil, fmt.Errorf("update signal %s: %w", id, err)
	}
	return sig, nil
}

func (s *PostgresStore) RequestManualClose(ctx context.Context, id string) (*model.Signal, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE signals
		 SET lifecycle = jsonb_set(lifecycle, '{is_manual_close_requested}', 'true'::JSONB),
		     version = version + 1
		 WHERE id = $1
		   AND NOT COALESCE((lifecycle->>'is_manual_close_requested')::BOOLEAN, FALSE)
		 RETURNING `+signalColumns, id)
	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already flagged, or missing.
		return s.GetSignal(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("request manual close %s: %w", id, err)
	}
	return sig, nil
}

// missOrConflict tells a missing row apart from a stale version after a
// CAS update matched nothing.
func (s *PostgresStore) missOrConflict(ctx context.Context, id string, version int64) error {
	var current int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM signals WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read version %s: %w", id, err)
	}
	return fmt.Errorf("signal %s at version %d, expected %d: %w", id, current, version, ErrVersionConflict)
}

// --- Directory ---

func (s *PostgresStore) CommunitiesHiringTrader(ctx context.Context, traderID string) ([]model.Community, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, active, hired_traders
		 FROM communities
		 WHERE $1 = ANY(hired_traders)
		 ORDER BY id`, traderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Community
	for rows.Next() {
		var c model.Community
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &c.HiredTraders); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveChannels(ctx context.Context, communityID string) ([]model.Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, community_id, type, credentials, active
		 FROM channels
		 WHERE community_id = $1 AND active
		 ORDER BY id`, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		var ch model.Channel
		var typ string
		var creds []byte
		if err := rows.Scan(&ch.ID, &ch.CommunityID, &typ, &creds, &ch.Active); err != nil {
			return nil, err
		}
		ch.Type = model.ChannelType(typ)
		if len(creds) > 0 {
			if err := json.Unmarshal(creds, &ch.Credentials); err != nil {
				return nil, fmt.Errorf("decode credentials for channel %s: %w", ch.ID, err)
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Migrate creates the tables the monitor reads and writes. Signals,
// communities and channels are owned by the CRUD service; these statements
// only make a fresh database usable.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists signals (
			id text primary key,
			trader_id text not null,
			username text not null default '',
			pair text not null,
			direction text not null,
			leverage numeric not null default 1,
			entry numeric not null,
			stop numeric not null,
			targets jsonb not null default '[]'::jsonb,
			strategy text not null default '',
			risk text not null default '',
			lifecycle jsonb not null default '{"is_new": true, "events": []}'::jsonb,
			version bigint not null default 0,
			created_at timestamptz not null default now()
		);`,
		`create index if not exists signals_live_idx on signals(((lifecycle->>'is_closed')), ((lifecycle->>'is_cancelled')));`,
		`create table if not exists communities (
			id text primary key,
			name text not null default '',
			active boolean not null default true,
			hired_traders text[] not null default '{}'
		);`,
		`create index if not exists communities_hired_traders_idx on communities using gin(hired_traders);`,
		`create table if not exists channels (
			id text primary key,
			community_id text not null references communities(id) on delete cascade,
			type text not null,
			credentials jsonb not null default '{}'::jsonb,
			active boolean not null default true
		);`,
		`create index if not exists channels_community_idx on channels(community_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func scanSignal(row pgx.Row) (*model.Signal, error) {
	var sig model.Signal
	var direction, leverage, entry, stop string
	var targets, lifecycle []byte

	if err := row.Scan(&sig.ID, &sig.TraderID, &sig.Username, &sig.Pair, &direction,
		&leverage, &entry, &stop, &targets,
		&sig.Strategy, &sig.Risk, &lifecycle, &sig.Version, &sig.CreatedAt); err != nil {
		return nil, err
	}

	sig.Direction = model.Direction(direction)
	sig.Leverage, _ = decimal.NewFromString(leverage)
	sig.Entry, _ = decimal.NewFromString(entry)
	sig.Stop, _ = decimal.NewFromString(stop)

	if err := json.Unmarshal(targets, &sig.Targets); err != nil {
		return nil, fmt.Errorf("decode targets for %s: %w", sig.ID, err)
	}
	if err := json.Unmarshal(lifecycle, &sig.Lifecycle); err != nil {
		return nil, fmt.Errorf("decode lifecycle for %s: %w", sig.ID, err)
	}
	return &sig, nil
}
