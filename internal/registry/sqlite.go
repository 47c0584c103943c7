package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/regress"
)

// SQLiteStore persists models across runs for provenance. Put upserts the
// current model per key; superseded versions are overwritten, matching the
// registry contract (latest per key).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a model store at path and runs
// migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open model store: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS correction_models (
			variable       TEXT    NOT NULL,
			station_id     TEXT    NOT NULL,
			schema_version INTEGER NOT NULL,
			version        TEXT    NOT NULL,
			trained_at     TEXT    NOT NULL,
			train_start    TEXT    NOT NULL,
			train_end      TEXT    NOT NULL,
			train_rows     INTEGER NOT NULL,
			val_rows       INTEGER NOT NULL,
			regressor      TEXT    NOT NULL,
			state          BLOB    NOT NULL,
			validation     TEXT    NOT NULL,
			baseline       TEXT    NOT NULL,
			PRIMARY KEY (variable, station_id, schema_version)
		)`)
	if err != nil {
		return fmt.Errorf("migrate model store: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Put upserts the model for its key. The regressor must support state
// serialization.
func (s *SQLiteStore) Put(model domain.CorrectionModel) error {
	reg, ok := model.Regressor.(regress.Regressor)
	if !ok {
		return fmt.Errorf("model store: regressor %T is not serializable", model.Regressor)
	}
	state, err := reg.State()
	if err != nil {
		return fmt.Errorf("model store: serialize %s: %w", model.Key, err)
	}
	validation, err := json.Marshal(model.Validation)
	if err != nil {
		return fmt.Errorf("model store: %w", err)
	}
	baseline, err := json.Marshal(model.Baseline)
	if err != nil {
		return fmt.Errorf("model store: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO correction_models
			(variable, station_id, schema_version, version, trained_at,
			 train_start, train_end, train_rows, val_rows, regressor, state,
			 validation, baseline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (variable, station_id, schema_version) DO UPDATE SET
			version = excluded.version,
			trained_at = excluded.trained_at,
			train_start = excluded.train_start,
			train_end = excluded.train_end,
			train_rows = excluded.train_rows,
			val_rows = excluded.val_rows,
			regressor = excluded.regressor,
			state = excluded.state,
			validation = excluded.validation,
			baseline = excluded.baseline`,
		string(model.Key.Variable), model.Key.StationID, model.Key.SchemaVersion,
		model.Version, model.TrainedAt.Format(time.RFC3339),
		model.TrainStart.Format(time.RFC3339), model.TrainEnd.Format(time.RFC3339),
		model.TrainRows, model.ValRows, model.Regressor.Name(), state,
		string(validation), string(baseline),
	)
	if err != nil {
		return fmt.Errorf("model store: put %s: %w", model.Key, err)
	}
	return nil
}

// GetModel loads and reconstructs the model for a key. A missing key returns
// (zero, false, nil).
func (s *SQLiteStore) GetModel(key domain.ModelKey) (domain.CorrectionModel, bool, error) {
	row := s.db.QueryRow(`
		SELECT version, trained_at, train_start, train_end, train_rows,
		       val_rows, regressor, state, validation, baseline
		FROM correction_models
		WHERE variable = ? AND station_id = ? AND schema_version = ?`,
		string(key.Variable), key.StationID, key.SchemaVersion)

	var (
		model                           = domain.CorrectionModel{Key: key}
		trainedAt, trainStart, trainEnd string
		regName                         string
		state                           []byte
		validation, baseline            string
	)
	err := row.Scan(&model.Version, &trainedAt, &trainStart, &trainEnd,
		&model.TrainRows, &model.ValRows, &regName, &state, &validation, &baseline)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CorrectionModel{}, false, nil
	}
	if err != nil {
		return domain.CorrectionModel{}, false, fmt.Errorf("model store: get %s: %w", key, err)
	}

	if model.TrainedAt, err = time.Parse(time.RFC3339, trainedAt); err != nil {
		return domain.CorrectionModel{}, false, fmt.Errorf("model store: get %s: %w", key, err)
	}
	if model.TrainStart, err = time.Parse(time.RFC3339, trainStart); err != nil {
		return domain.CorrectionModel{}, false, fmt.Errorf("model store: get %s: %w", key, err)
	}
	if model.TrainEnd, err = time.Parse(time.RFC3339, trainEnd); err != nil {
		return domain.CorrectionModel{}, false, fmt.Errorf("model store: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(validation), &model.Validation); err != nil {
		return domain.CorrectionModel{}, false, fmt.Errorf("model store: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(baseline), &model.Baseline); err != nil {
		return domain.CorrectionModel{}, false, fmt.Errorf("model store: get %s: %w", key, err)
	}

	reg, err := regress.Restore(regName, state)
	if err != nil {
		return domain.CorrectionModel{}, false, fmt.Errorf("model store: get %s: %w", key, err)
	}
	model.Regressor = reg
	return model, true, nil
}

// Get adapts GetModel to the Registry contract; load failures report absence
// so callers fall back to identity correction.
func (s *SQLiteStore) Get(key domain.ModelKey) (domain.CorrectionModel, bool) {
	model, ok, err := s.GetModel(key)
	if err != nil {
		return domain.CorrectionModel{}, false
	}
	return model, ok
}

// Keys lists stored keys in primary-key order.
func (s *SQLiteStore) Keys() []domain.ModelKey {
	rows, err := s.db.Query(`SELECT variable, station_id, schema_version FROM correction_models ORDER BY variable, station_id, schema_version`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var keys []domain.ModelKey
	for rows.Next() {
		var k domain.ModelKey
		var variable string
		if err := rows.Scan(&variable, &k.StationID, &k.SchemaVersion); err != nil {
			return keys
		}
		k.Variable = domain.Variable(variable)
		keys = append(keys, k)
	}
	return keys
}

// Len counts stored models.
func (s *SQLiteStore) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM correction_models`).Scan(&n); err != nil {
		return 0
	}
	return n
}
