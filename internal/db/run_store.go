package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/waveform.misfit/internal/misfit"
	"github.com/banshee-data/waveform.misfit/internal/timeutil"
)

// ErrNotFound is returned when a run or evaluation does not exist.
var ErrNotFound = errors.New("db: not found")

// Run groups the evaluations of one misfit configuration over one data set.
type Run struct {
	RunID      string          `json:"run_id"`
	Label      string          `json:"label"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// Evaluation is the persisted misfit of one candidate mechanism.
type Evaluation struct {
	EvaluationID string             `json:"evaluation_id"`
	RunID        string             `json:"run_id"`
	Mechanism    string             `json:"mechanism"`
	ParamsJSON   json.RawMessage    `json:"params_json,omitempty"`
	Misfit       float64            `json:"misfit"`
	CreatedAt    int64              `json:"created_at"`
	Alignments   []misfit.Alignment `json:"alignments,omitempty"`
}

// RunStore provides persistence for misfit runs and their evaluations.
type RunStore struct {
	db    *DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return NewRunStoreWithClock(db, timeutil.RealClock{})
}

// NewRunStoreWithClock creates a RunStore that stamps records using clock.
func NewRunStoreWithClock(db *DB, clock timeutil.Clock) *RunStore {
	return &RunStore{db: db, clock: clock}
}

// InsertRun persists a run. If RunID is empty, a UUID is generated.
func (s *RunStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO misfit_runs (run_id, label, config_json, created_at)
			VALUES (?, ?, ?, ?)`,
			run.RunID, run.Label, nullableJSON(run.ConfigJSON), run.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// GetRun returns a run by ID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	var r Run
	var cfg sql.NullString
	err := s.db.QueryRow(`
		SELECT run_id, label, config_json, created_at
		FROM misfit_runs
		WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.Label, &cfg, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	return &r, nil
}

// InsertEvaluation persists an evaluation and its alignments in one
// transaction. If EvaluationID is empty, a UUID is generated.
func (s *RunStore) InsertEvaluation(eval *Evaluation) error {
	if eval.EvaluationID == "" {
		eval.EvaluationID = uuid.New().String()
	}
	if eval.CreatedAt == 0 {
		eval.CreatedAt = s.clock.Now().UnixNano()
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO misfit_evaluations (
				evaluation_id, run_id, mechanism, params_json, misfit, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			eval.EvaluationID, eval.RunID, eval.Mechanism,
			nullableJSON(eval.ParamsJSON), eval.Misfit, eval.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert evaluation: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO misfit_alignments (
				evaluation_id, seq, station, channel, component, time_shift_group,
				time_shift, start_index, stop_index, sum_residuals, weight
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare alignment insert: %w", err)
		}
		defer stmt.Close()

		for i, a := range eval.Alignments {
			comp, err := a.Component.MarshalText()
			if err != nil {
				return fmt.Errorf("alignment %d component: %w", i, err)
			}
			if _, err := stmt.Exec(
				eval.EvaluationID, i, a.Station, a.Channel, string(comp), a.TimeShiftGroup,
				a.TimeShift, a.Start, a.Stop, a.SumResiduals, a.Weight,
			); err != nil {
				return fmt.Errorf("insert alignment %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
}

// ListEvaluations returns the evaluations of a run, best (lowest misfit)
// first. Alignments are not loaded; use GetAlignments.
func (s *RunStore) ListEvaluations(runID string) ([]*Evaluation, error) {
	rows, err := s.db.Query(`
		SELECT evaluation_id, run_id, mechanism, params_json, misfit, created_at
		FROM misfit_evaluations
		WHERE run_id = ?
		ORDER BY misfit ASC, mechanism ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []*Evaluation
	for rows.Next() {
		var e Evaluation
		var params sql.NullString
		if err := rows.Scan(&e.EvaluationID, &e.RunID, &e.Mechanism, &params, &e.Misfit, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}
		if params.Valid {
			e.ParamsJSON = json.RawMessage(params.String)
		}
		evals = append(evals, &e)
	}
	return evals, rows.Err()
}

// GetAlignments returns the per-record alignments of an evaluation in the
// order they were produced.
func (s *RunStore) GetAlignments(evaluationID string) ([]misfit.Alignment, error) {
	rows, err := s.db.Query(`
		SELECT station, channel, component, time_shift_group,
		       time_shift, start_index, stop_index, sum_residuals, weight
		FROM misfit_alignments
		WHERE evaluation_id = ?
		ORDER BY seq`, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("query alignments: %w", err)
	}
	defer rows.Close()

	var out []misfit.Alignment
	for rows.Next() {
		var a misfit.Alignment
		var comp string
		if err := rows.Scan(&a.Station, &a.Channel, &comp, &a.TimeShiftGroup,
			&a.TimeShift, &a.Start, &a.Stop, &a.SumResiduals, &a.Weight); err != nil {
			return nil, fmt.Errorf("scan alignment row: %w", err)
		}
		if err := a.Component.UnmarshalText([]byte(comp)); err != nil {
			return nil, fmt.Errorf("alignment component: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through foreign keys, its evaluations.
func (s *RunStore) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM misfit_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
