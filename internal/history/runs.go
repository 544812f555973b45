package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"kettle/internal/ledger"
)

// ErrRunNotFound is returned when no run matches the requested ID.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousRunID is returned when an ID prefix matches more than one run.
var ErrAmbiguousRunID = errors.New("ambiguous run id")

// minPrefixLength is the shortest ID prefix GetRun accepts.
const minPrefixLength = 4

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = "id, trigger, started_at, finished_at, source_root, output_root, check_timestamps, compress, clean, filters_json, total, compiled, skipped, failed, elapsed_ms, error_message"

// RecordRun stores run and its outcomes in a single transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, outcomes []ledger.Outcome) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("record run: id required")
	}

	var filters any
	if len(run.Filters) > 0 {
		encoded, err := json.Marshal(run.Filters)
		if err != nil {
			return fmt.Errorf("encode filters: %w", err)
		}
		filters = string(encoded)
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin run tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			string(run.Trigger),
			run.StartedAt.UTC().Format(timeLayout),
			run.FinishedAt.UTC().Format(timeLayout),
			run.SourceRoot,
			run.OutputRoot,
			boolToInt(run.CheckTimestamps),
			boolToInt(run.Compress),
			boolToInt(run.Clean),
			filters,
			run.Summary.Total,
			run.Summary.Compiled,
			run.Summary.Skipped,
			run.Summary.Failed,
			run.Summary.ElapsedMs,
			nullableString(run.Error),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO outcomes (run_id, seq, input, output, elapsed_ms, compiled, skipped, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare outcome insert: %w", err)
		}
		defer stmt.Close()

		for i, outcome := range outcomes {
			if _, err := stmt.ExecContext(ctx,
				run.ID,
				i,
				outcome.Input,
				nullableString(outcome.Output),
				outcome.ElapsedMs,
				boolToInt(outcome.Compiled),
				boolToInt(outcome.Skipped),
				nullableString(outcome.Error),
			); err != nil {
				return fmt.Errorf("insert outcome %d: %w", i, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit run: %w", err)
		}
		return nil
	})
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches a run by full ID or by a unique prefix of at least four
// characters.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return Run{}, ErrRunNotFound
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	if len(id) < minPrefixLength {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(id), id)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
	}
}

// Outcomes returns the recorded outcomes of a run in recording order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]ledger.Outcome, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT input, output, elapsed_ms, compiled, skipped, error FROM outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []ledger.Outcome
	for rows.Next() {
		var (
			outcome  ledger.Outcome
			output   sql.NullString
			compiled int
			skipped  int
			errText  sql.NullString
		)
		if err := rows.Scan(&outcome.Input, &output, &outcome.ElapsedMs, &compiled, &skipped, &errText); err != nil {
			return nil, err
		}
		outcome.Output = output.String
		outcome.Compiled = compiled != 0
		outcome.Skipped = skipped != 0
		outcome.Error = errText.String
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// Prune deletes all but the keep newest runs and returns how many were
// removed. keep <= 0 keeps everything.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	ctx = ensureContext(ctx)
	if keep <= 0 {
		return 0, nil
	}
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?)`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

// Count returns the number of recorded runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run             Run
		trigger         string
		startedRaw      string
		finishedRaw     string
		checkTimestamps int
		compress        int
		clean           int
		filtersRaw      sql.NullString
		errorMessage    sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&trigger,
		&startedRaw,
		&finishedRaw,
		&run.SourceRoot,
		&run.OutputRoot,
		&checkTimestamps,
		&compress,
		&clean,
		&filtersRaw,
		&run.Summary.Total,
		&run.Summary.Compiled,
		&run.Summary.Skipped,
		&run.Summary.Failed,
		&run.Summary.ElapsedMs,
		&errorMessage,
	); err != nil {
		return Run{}, err
	}

	run.Trigger = Trigger(trigger)
	run.CheckTimestamps = checkTimestamps != 0
	run.Compress = compress != 0
	run.Clean = clean != 0
	run.Error = errorMessage.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finished, err := parseTimeString(finishedRaw); err == nil {
		run.FinishedAt = finished
	}
	if filtersRaw.Valid && filtersRaw.String != "" {
		if err := json.Unmarshal([]byte(filtersRaw.String), &run.Filters); err != nil {
			return Run{}, fmt.Errorf("decode filters for run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
