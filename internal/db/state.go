package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Event names.
const (
	EventRunStart   = "run_start"
	EventRunEnd     = "run_end"
	EventExtractEnd = "extract_end"
	EventPersisted  = "persisted"
	EventSkip       = "skip"
	EventOrphan     = "orphan"
	EventError      = "error"
)

// Subject types.
const (
	SubjectRun     = "run"
	SubjectArchive = "archive"
	SubjectBatch   = "batch"
	SubjectImage   = "image"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS figcoco_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS figcoco_event_log (
    log_id           BIGINT PRIMARY KEY DEFAULT nextval('figcoco_event_log_id_seq'),
    run_id           VARCHAR NOT NULL,
    subject          VARCHAR NOT NULL,      -- archive path, batch number, image path or run id
    subject_type     VARCHAR NOT NULL,      -- 'run', 'archive', 'batch', 'image'
    event            VARCHAR NOT NULL,
    event_timestamp  TIMESTAMP NOT NULL,
    batch_index      INTEGER,
    image_count      INTEGER,
    annotation_count INTEGER,
    message          VARCHAR,
    duration_ms      BIGINT
);
CREATE INDEX IF NOT EXISTS idx_figcoco_event_log_subject ON figcoco_event_log (subject, subject_type);
CREATE INDEX IF NOT EXISTS idx_figcoco_event_log_event_time ON figcoco_event_log (event, event_timestamp);
`

// InitializeSchema creates the sequence and the event log table.
func InitializeSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSequenceSQL); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	if _, err := db.Exec(schemaTableSQL); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// Event is one row of the event log. Batch is ignored when negative; counts
// and duration are stored only when set.
type Event struct {
	Subject     string
	SubjectType string
	Event       string
	Batch       int
	Images      *int
	Annotations *int
	Message     string
	Duration    *time.Duration
}

// EventLog writes events for one run. Every row carries the run's id.
type EventLog struct {
	db    *sql.DB
	runID string
}

// NewEventLog returns an event log bound to a fresh run id.
func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db, runID: uuid.NewString()}
}

// RunID returns the id stamped on this run's rows.
func (l *EventLog) RunID() string { return l.runID }

// Record inserts ev.
func (l *EventLog) Record(ctx context.Context, ev Event) error {
	query := `
        INSERT INTO figcoco_event_log (run_id, subject, subject_type, event, event_timestamp, batch_index, image_count, annotation_count, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	var batch, images, annotations sql.NullInt32
	if ev.Batch >= 0 {
		batch = sql.NullInt32{Int32: int32(ev.Batch), Valid: true}
	}
	if ev.Images != nil {
		images = sql.NullInt32{Int32: int32(*ev.Images), Valid: true}
	}
	if ev.Annotations != nil {
		annotations = sql.NullInt32{Int32: int32(*ev.Annotations), Valid: true}
	}
	var durationMs sql.NullInt64
	if ev.Duration != nil {
		durationMs = sql.NullInt64{Int64: ev.Duration.Milliseconds(), Valid: true}
	}

	_, err := l.db.ExecContext(ctx, query,
		l.runID,
		ev.Subject,
		ev.SubjectType,
		ev.Event,
		time.Now().UTC(),
		batch,
		images,
		annotations,
		sql.NullString{String: ev.Message, Valid: ev.Message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", ev.Event, ev.Subject, err)
	}
	return nil
}

// DisplayEventLog writes the most recent events to w, newest first.
func DisplayEventLog(ctx context.Context, db *sql.DB, w io.Writer, subjectTypeFilter, eventFilter string, limit int) error {
	query := `
        SELECT run_id, subject, subject_type, event, event_timestamp, batch_index, image_count, annotation_count, message, duration_ms
        FROM figcoco_event_log
    `
	conditions := []string{}
	args := []any{}
	if subjectTypeFilter != "" {
		conditions = append(conditions, "subject_type = ?")
		args = append(args, subjectTypeFilter)
	}
	if eventFilter != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, eventFilter)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY event_timestamp DESC, log_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSUBJECT\tTYPE\tEVENT\tTIMESTAMP (UTC)\tBATCH\tIMAGES\tANNOTATIONS\tDURATION_MS\tMESSAGE")

	count := 0
	for rows.Next() {
		var runID, subject, subjectType, event string
		var timestamp time.Time
		var batch, images, annotations sql.NullInt32
		var message sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&runID, &subject, &subjectType, &event, &timestamp, &batch, &images, &annotations, &message, &durationMs); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}
		if subjectType == SubjectArchive || subjectType == SubjectImage {
			subject = filepath.Base(filepath.Dir(subject)) + "/" + filepath.Base(subject)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortRunID(runID), subject, subjectType, event, timestamp.Format(time.RFC3339),
			nullInt(batch), nullInt(images), nullInt(annotations), nullInt64(durationMs), message.String)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Displayed %d records.\n", count)
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func nullInt(v sql.NullInt32) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%d", v.Int32)
}

func nullInt64(v sql.NullInt64) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%d", v.Int64)
}
