package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CompletedArchives returns the subset of archives that some earlier run
// recorded as persisted into the dataset.
func (l *EventLog) CompletedArchives(ctx context.Context, archives []string, logger *slog.Logger) (map[string]bool, error) {
	completed := make(map[string]bool)
	if len(archives) == 0 {
		return completed, nil
	}
	wanted := make(map[string]struct{}, len(archives))
	for _, a := range archives {
		wanted[a] = struct{}{}
	}

	query := `
		SELECT DISTINCT subject
		FROM figcoco_event_log
		WHERE subject_type = ? AND event = ?;
	`
	rows, err := l.db.QueryContext(ctx, query, SubjectArchive, EventPersisted)
	if err != nil {
		logger.Error("Failed to query for completed archives", "error", err)
		return nil, fmt.Errorf("query completed archives: %w", err)
	}
	defer rows.Close()

	var scanErrors error
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan completed archive: %w", err))
			continue
		}
		if _, ok := wanted[subject]; ok {
			completed[subject] = true
		}
	}
	if err := rows.Err(); err != nil {
		return completed, errors.Join(scanErrors, fmt.Errorf("iterate completed archives: %w", err))
	}

	logger.Debug("Found completed archives in event log.", slog.Int("count", len(completed)))
	return completed, scanErrors
}
