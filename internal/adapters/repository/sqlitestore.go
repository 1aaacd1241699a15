package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // registers the sqlite3 dialect
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/pkg/logger"
	"github.com/okian/boxboard/pkg/metrics"
)

const (
	sqliteDriver        = "sqlite"
	dialectSQLite       = "sqlite3"
	tableSnapshots      = "leaderboard_snapshots"
	colSeq              = "seq"
	colID               = "id"
	colSeasonID         = "season_id"
	colStatKey          = "stat_key"
	colSchemaVersion    = "schema_version"
	colFormatterVersion = "formatter_version"
	colETag             = "etag"
	colPayload          = "payload"
	colManifest         = "build_manifest"
	colBuiltAt          = "built_at"

	// Immediate transactions take the write lock up front so concurrent
	// saves queue on busy_timeout instead of failing lock upgrades.
	sqliteParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		season_id INTEGER NOT NULL,
		stat_key TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		formatter_version INTEGER NOT NULL,
		etag TEXT NOT NULL,
		payload BLOB NOT NULL,
		build_manifest BLOB,
		built_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leaderboard_snapshots_key
		ON leaderboard_snapshots (season_id, stat_key, built_at DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_leaderboard_snapshots_etag
		ON leaderboard_snapshots (season_id, stat_key, etag)`,
}

// snapshotRow is one persisted snapshot; payload is zstd-compressed
// canonical JSON.
type snapshotRow struct {
	Seq      int64  `db:"seq"`
	ID       string `db:"id"`
	StatKey  string `db:"stat_key"`
	ETag     string `db:"etag"`
	Payload  []byte `db:"payload"`
	Manifest []byte `db:"build_manifest"`
	BuiltAt  int64  `db:"built_at"`
}

// SQLiteStore is a durable Store backed by a single SQLite file.
type SQLiteStore struct {
	db        *sqlx.DB
	dialect   goqu.DialectWrapper
	enc       *zstd.Encoder
	dec       *zstd.Decoder
	retention int
	logger    logger.Logger
}

// OpenSQLite opens (creating if needed) the snapshot database at path and
// applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	o := newOptions("store.sqlite", opts)

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sqlx.Open(sqliteDriver, cleanPath+"?"+sqliteParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	o.logger.Info(ctx, "sqlite snapshot store opened",
		logger.String("path", cleanPath),
		logger.Int("retention", o.retention))

	return &SQLiteStore{
		db:        db,
		dialect:   goqu.Dialect(dialectSQLite),
		enc:       enc,
		dec:       dec,
		retention: o.retention,
		logger:    o.logger,
	}, nil
}

func (st *SQLiteStore) Save(ctx context.Context, s *snapshot.Snapshot, manifest snapshot.BuildManifest) (stored snapshot.Stored, err error) {
	defer st.observe("save", time.Now())

	if err := snapshot.Validate(s); err != nil {
		return snapshot.Stored{}, err
	}
	payload, etag, err := snapshot.EncodeWithETag(s)
	if err != nil {
		return snapshot.Stored{}, err
	}
	manifestJSON, err := snapshot.EncodeManifest(manifest)
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("encode build manifest: %w", err)
	}
	id := uuid.New()

	insertSQL, insertArgs, err := st.dialect.Insert(tableSnapshots).Prepared(true).Rows(goqu.Record{
		colID:               id.String(),
		colSeasonID:         s.SeasonID,
		colStatKey:          s.StatKey,
		colSchemaVersion:    s.SchemaVersion,
		colFormatterVersion: s.FormatterVersion,
		colETag:             etag,
		colPayload:          st.enc.EncodeAll(payload, make([]byte, 0, len(payload)/2)),
		colManifest:         manifestJSON,
		colBuiltAt:          s.BuiltAt.UnixMilli(),
	}).ToSQL()
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("build insert query: %w", err)
	}
	keySQL, keyArgs, err := st.dialect.From(tableSnapshots).Prepared(true).
		Select(colSeq).
		Where(goqu.Ex{colSeasonID: s.SeasonID, colStatKey: s.StatKey}).
		Order(goqu.I(colBuiltAt).Desc(), goqu.I(colSeq).Desc()).
		ToSQL()
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("build prune query: %w", err)
	}

	tx, err := st.db.BeginTxx(ctx, nil)
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
		return snapshot.Stored{}, fmt.Errorf("insert snapshot: %w", err)
	}
	var seqs []int64
	if err = tx.SelectContext(ctx, &seqs, keySQL, keyArgs...); err != nil {
		return snapshot.Stored{}, fmt.Errorf("list snapshots for prune: %w", err)
	}
	pruned := 0
	if len(seqs) > st.retention {
		stale := seqs[st.retention:]
		var delSQL string
		var delArgs []any
		delSQL, delArgs, err = st.dialect.Delete(tableSnapshots).Prepared(true).
			Where(goqu.C(colSeq).In(stale)).
			ToSQL()
		if err != nil {
			return snapshot.Stored{}, fmt.Errorf("build delete query: %w", err)
		}
		if _, err = tx.ExecContext(ctx, delSQL, delArgs...); err != nil {
			return snapshot.Stored{}, fmt.Errorf("prune snapshots: %w", err)
		}
		pruned = len(stale)
	}
	if err = tx.Commit(); err != nil {
		return snapshot.Stored{}, fmt.Errorf("commit save: %w", err)
	}

	if pruned > 0 {
		metrics.RecordSnapshotsPruned(pruned)
		st.logger.Info(ctx, "pruned snapshots",
			logger.Int("season_id", s.SeasonID),
			logger.String("stat_key", s.StatKey),
			logger.Int("pruned", pruned),
			logger.Int("retention", st.retention))
	}

	decoded, err := snapshot.Decode(payload)
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("%w: %v", ErrDecodeSnapshot, err)
	}
	return snapshot.Stored{ID: id, ETag: etag, Snapshot: decoded, Manifest: manifest}, nil
}

func (st *SQLiteStore) Latest(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, error) {
	defer st.observe("latest", time.Now())

	if statKey == "" {
		return snapshot.Stored{}, ErrInvalidKey
	}
	q, args, err := st.selectRows().
		Where(goqu.Ex{colSeasonID: seasonID, colStatKey: statKey}).
		Order(goqu.I(colBuiltAt).Desc(), goqu.I(colSeq).Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("build latest query: %w", err)
	}
	var row snapshotRow
	if err := st.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snapshot.Stored{}, ErrNotFound
		}
		return snapshot.Stored{}, fmt.Errorf("query latest snapshot: %w", err)
	}
	return st.decodeRow(row)
}

func (st *SQLiteStore) List(ctx context.Context, seasonID int, statKey string) ([]snapshot.Stored, error) {
	defer st.observe("list", time.Now())

	q, args, err := st.selectRows().
		Where(goqu.Ex{colSeasonID: seasonID, colStatKey: statKey}).
		Order(goqu.I(colBuiltAt).Desc(), goqu.I(colSeq).Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	var rows []snapshotRow
	if err := st.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]snapshot.Stored, 0, len(rows))
	for _, row := range rows {
		stored, err := st.decodeRow(row)
		if err != nil {
			st.logger.Warn(ctx, "skipping unreadable snapshot", logger.String("id", row.ID), logger.Error(err))
			continue
		}
		out = append(out, stored)
	}
	return out, nil
}

func (st *SQLiteStore) LatestForSeason(ctx context.Context, seasonID int) (map[string]snapshot.Stored, error) {
	defer st.observe("latest_for_season", time.Now())

	q, args, err := st.selectRows().
		Where(goqu.Ex{colSeasonID: seasonID}).
		Order(goqu.I(colStatKey).Asc(), goqu.I(colBuiltAt).Desc(), goqu.I(colSeq).Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build season query: %w", err)
	}
	var rows []snapshotRow
	if err := st.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("load season snapshots: %w", err)
	}
	out := make(map[string]snapshot.Stored)
	seen := make(map[string]struct{})
	for _, row := range rows {
		if _, done := seen[row.StatKey]; done {
			continue
		}
		seen[row.StatKey] = struct{}{}
		stored, err := st.decodeRow(row)
		if err != nil {
			st.logger.Warn(ctx, "latest snapshot unreadable", logger.String("stat_key", row.StatKey), logger.Error(err))
			continue
		}
		out[row.StatKey] = stored
	}
	return out, nil
}

func (st *SQLiteStore) DeleteAfter(ctx context.Context, seasonID int, statKey, etag string) (deleted int, err error) {
	defer st.observe("delete_after", time.Now())

	key := goqu.Ex{colSeasonID: seasonID, colStatKey: statKey}
	findSQL, findArgs, err := st.dialect.From(tableSnapshots).Prepared(true).
		Select(colSeq, colBuiltAt).
		Where(key, goqu.C(colETag).Eq(etag)).
		Order(goqu.I(colBuiltAt).Desc(), goqu.I(colSeq).Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build rollback query: %w", err)
	}

	tx, err := st.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin rollback: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var target struct {
		Seq     int64 `db:"seq"`
		BuiltAt int64 `db:"built_at"`
	}
	if err = tx.GetContext(ctx, &target, findSQL, findArgs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: etag %s for %d/%s", ErrNotFound, etag, seasonID, statKey)
			return 0, err
		}
		return 0, fmt.Errorf("find rollback target: %w", err)
	}

	var delSQL string
	var delArgs []any
	delSQL, delArgs, err = st.dialect.Delete(tableSnapshots).Prepared(true).
		Where(key, goqu.Or(
			goqu.C(colBuiltAt).Gt(target.BuiltAt),
			goqu.And(goqu.C(colBuiltAt).Eq(target.BuiltAt), goqu.C(colSeq).Gt(target.Seq)),
		)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build rollback delete: %w", err)
	}
	res, err := tx.ExecContext(ctx, delSQL, delArgs...)
	if err != nil {
		return 0, fmt.Errorf("rollback snapshots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rollback rows affected: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rollback: %w", err)
	}

	metrics.RecordSnapshotsPruned(int(affected))
	if affected > 0 {
		st.logger.Info(ctx, "rolled back snapshots",
			logger.Int("season_id", seasonID),
			logger.String("stat_key", statKey),
			logger.String("etag", etag),
			logger.Int64("deleted", affected))
	}
	return int(affected), nil
}

// Close releases the database and codec resources.
func (st *SQLiteStore) Close() error {
	st.dec.Close()
	encErr := st.enc.Close()
	return errors.Join(st.db.Close(), encErr)
}

func (st *SQLiteStore) selectRows() *goqu.SelectDataset {
	return st.dialect.From(tableSnapshots).Prepared(true).
		Select(colSeq, colID, colStatKey, colETag, colPayload, colManifest, colBuiltAt)
}

func (st *SQLiteStore) decodeRow(row snapshotRow) (snapshot.Stored, error) {
	raw, err := st.dec.DecodeAll(row.Payload, nil)
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("%w: decompress: %v", ErrDecodeSnapshot, err)
	}
	s, err := snapshot.Decode(raw)
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("%w: %v", ErrDecodeSnapshot, err)
	}
	manifest, err := snapshot.DecodeManifest(row.Manifest)
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("%w: manifest: %v", ErrDecodeSnapshot, err)
	}
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("%w: id: %v", ErrDecodeSnapshot, err)
	}
	return snapshot.Stored{ID: id, ETag: row.ETag, Snapshot: s, Manifest: manifest}, nil
}

func (st *SQLiteStore) observe(op string, start time.Time) {
	metrics.RecordStoreOpLatency(sqliteDriver, op, sinceMs(start))
}
