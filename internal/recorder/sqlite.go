package recorder

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"GemFarm/internal/model"
)

// SQLiteRecorder persists farm history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS farm_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			event_type   TEXT NOT NULL,
			farm_id      TEXT NOT NULL,
			farmer_id    TEXT,
			actor        TEXT,
			currency     TEXT,
			amount       TEXT,
			total_staked TEXT,
			note         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_farm_ts ON farm_events(farm_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS track_snapshots (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp           INTEGER NOT NULL,
			farm_id             TEXT NOT NULL,
			track               TEXT NOT NULL,
			currency            TEXT,
			total_staked        TEXT,
			active_farmers      TEXT,
			total_funded        TEXT,
			total_claimed       TEXT,
			total_claimable     TEXT,
			reward_rate         TEXT,
			reward_end_ts       INTEGER,
			acc_reward_per_unit TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_farm_ts ON track_snapshots(farm_id, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordFarmEvent(evt *FarmEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO farm_events
		(timestamp, event_type, farm_id, farmer_id, actor, currency, amount, total_staked, note)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.Timestamp, string(evt.EventType), evt.FarmID, evt.FarmerID, evt.Actor,
		evt.Currency, u64(evt.Amount), u64(evt.TotalStaked), evt.Note,
	)
	return err
}

// RecordSnapshot writes one row per reward track inside a single transaction.
func (r *SQLiteRecorder) RecordSnapshot(snap *model.FarmSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	for _, tr := range snap.Tracks {
		if _, err := tx.Exec(`INSERT INTO track_snapshots
			(timestamp, farm_id, track, currency, total_staked, active_farmers,
			 total_funded, total_claimed, total_claimable,
			 reward_rate, reward_end_ts, acc_reward_per_unit)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			snap.Timestamp, snap.FarmID, string(tr.Track), tr.Currency,
			u64(snap.TotalStaked), u64(snap.ActiveFarmerCount),
			u64(tr.TotalFunded), u64(tr.TotalClaimed), u64(tr.TotalClaimable),
			tr.RewardRate, tr.RewardEndTs, tr.AccRewardPerUnit,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert snapshot %s/%s: %w", snap.FarmID, tr.Track, err)
		}
	}
	return tx.Commit()
}

// u64 renders a token amount for a TEXT column. database/sql cannot bind uint64
// values above math.MaxInt64, and amounts use the full range.
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
