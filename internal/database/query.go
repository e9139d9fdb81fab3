package database

import (
	"database/sql"
	"time"

	"sdclean/internal/events"
)

const selectColumns = `
	SELECT id, timestamp, run_id, job, action, path, file_name, object_type,
	       size, reason, rules_fingerprint, error_message
	FROM events
`

// Recent returns the newest events, newest first
func (h *HistoryDB) Recent(limit int) ([]Record, error) {
	return h.query(selectColumns+`ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
}

// ByAction returns events with the given action
func (h *HistoryDB) ByAction(action events.Action, limit int) ([]Record, error) {
	return h.query(selectColumns+`WHERE action = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, string(action), limit)
}

// ByJob returns events recorded by one job
func (h *HistoryDB) ByJob(job string, limit int) ([]Record, error) {
	return h.query(selectColumns+`WHERE job = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, job, limit)
}

// ByPath returns events whose path matches a SQL LIKE pattern
func (h *HistoryDB) ByPath(pattern string, limit int) ([]Record, error) {
	return h.query(selectColumns+`WHERE path LIKE ? ORDER BY timestamp DESC, id DESC LIMIT ?`, pattern, limit)
}

// ByRun returns every event of one run in the order it was recorded
func (h *HistoryDB) ByRun(runID string) ([]Record, error) {
	return h.query(selectColumns+`WHERE run_id = ? ORDER BY id ASC`, runID)
}

// Stats aggregates history over a time window
type Stats struct {
	Deleted        int
	Previewed      int
	Skipped        int
	Failed         int
	ReadErrors     int
	BytesFreed     int64
	BytesPreviewed int64
	ByJob          map[string]int
	Start          time.Time
	End            time.Time
}

// Stats summarizes the last `days` days of history
func (h *HistoryDB) Stats(days int) (*Stats, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	st := &Stats{Start: start, End: end, ByJob: make(map[string]int)}

	err := h.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN action = 'delete' THEN 1 END),
			COUNT(CASE WHEN action = 'preview' THEN 1 END),
			COUNT(CASE WHEN action = 'skip' THEN 1 END),
			COUNT(CASE WHEN action = 'fail' THEN 1 END),
			COUNT(CASE WHEN action = 'read-error' THEN 1 END),
			COALESCE(SUM(CASE WHEN action = 'delete' THEN size END), 0),
			COALESCE(SUM(CASE WHEN action = 'preview' THEN size END), 0)
		FROM events
		WHERE timestamp >= ?
	`, start).Scan(&st.Deleted, &st.Previewed, &st.Skipped, &st.Failed, &st.ReadErrors,
		&st.BytesFreed, &st.BytesPreviewed)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.Query(`
		SELECT job, COUNT(*)
		FROM events
		WHERE action = 'delete' AND timestamp >= ?
		GROUP BY job
	`, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var job string
		var count int
		if err := rows.Scan(&job, &count); err != nil {
			return nil, err
		}
		st.ByJob[job] = count
	}
	return st, rows.Err()
}

// Prune removes records older than the given number of days
func (h *HistoryDB) Prune(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	result, err := h.db.Exec(`DELETE FROM events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (h *HistoryDB) query(query string, args ...any) ([]Record, error) {
	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var fileName, objectType, reason, fingerprint, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.RunID, &r.Job, &r.Action, &r.Path,
			&fileName, &objectType, &r.Size, &reason, &fingerprint, &errMsg,
		)
		if err != nil {
			return nil, err
		}
		r.FileName = fileName.String
		r.ObjectType = objectType.String
		r.Reason = reason.String
		r.Fingerprint = fingerprint.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}
	return records, rows.Err()
}
