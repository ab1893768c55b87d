package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LogEntry is one persisted log row as returned by a LogReader.
type LogEntry struct {
	ID                int64
	FileID            int64
	GroupID           *int64
	Timestamp         time.Time
	RobotID           string
	Severity          string
	Message           string
	Source            string
	Kind              string
	Metadata          *string
	ChannelGroupIndex *int
}

// ReaderOption configures a LogReader with filtering criteria.
type ReaderOption func(*LogReader)

// WithKind restricts the reader to logs of one kind.
func WithKind(kind string) ReaderOption {
	return func(r *LogReader) {
		r.kind = &kind
	}
}

// WithSeverity restricts the reader to logs of one severity.
func WithSeverity(severity string) ReaderOption {
	return func(r *LogReader) {
		r.severity = &severity
	}
}

// WithGroup restricts the reader to logs assigned to one group.
func WithGroup(groupID int64) ReaderOption {
	return func(r *LogReader) {
		r.groupID = &groupID
	}
}

// WithTimeRange restricts the reader to logs within [start, end].
func WithTimeRange(start, end time.Time) ReaderOption {
	return func(r *LogReader) {
		r.startTime = &start
		r.endTime = &end
	}
}

// LogReader iterates over the logs of one measurement file in timestamp
// order. It must be closed after use. Each reader instance should only be
// used from a single goroutine.
type LogReader struct {
	db     *sql.DB
	fileID int64

	kind      *string
	severity  *string
	groupID   *int64
	startTime *time.Time
	endTime   *time.Time

	rows    *sql.Rows
	current *LogEntry
	err     error
}

// ReadLogs creates a LogReader over the logs of the given file, applying
// any filter options.
func (s *SqliteStore) ReadLogs(ctx context.Context, fileID int64, opts ...ReaderOption) (*LogReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	r := &LogReader{db: db, fileID: fileID}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *LogReader) init(ctx context.Context) error {
	query := `
SELECT
    id,
    file_id,
    group_id,
    timestamp,
    robot_id,
    severity,
    message,
    source,
    kind,
    metadata,
    channel_group_index
FROM logs
WHERE
    file_id = ?`
	args := []any{r.fileID}

	if r.kind != nil {
		query += " AND kind = ?"
		args = append(args, *r.kind)
	}
	if r.severity != nil {
		query += " AND severity = ?"
		args = append(args, *r.severity)
	}
	if r.groupID != nil {
		query += " AND group_id = ?"
		args = append(args, *r.groupID)
	}
	if r.startTime != nil && r.endTime != nil {
		query += " AND timestamp BETWEEN ? AND ?"
		args = append(args, r.startTime.UTC(), r.endTime.UTC())
	}
	query += " ORDER BY timestamp, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying logs: %w", err)
	}
	r.rows = rows
	return nil
}

// Next advances the reader and reports whether another entry is available.
func (r *LogReader) Next() bool {
	if r.err != nil || r.rows == nil {
		return false
	}
	if !r.rows.Next() {
		return false
	}

	var data logData
	if err := r.rows.Scan(
		&data.ID,
		&data.FileID,
		&data.GroupID,
		&data.Timestamp,
		&data.RobotID,
		&data.Severity,
		&data.Message,
		&data.Source,
		&data.Kind,
		&data.Metadata,
		&data.GroupIndex,
	); err != nil {
		r.err = fmt.Errorf("scanning log: %w", err)
		return false
	}

	entry := &LogEntry{
		ID:        data.ID,
		FileID:    data.FileID,
		Timestamp: data.Timestamp,
		RobotID:   data.RobotID.String,
		Severity:  data.Severity,
		Message:   data.Message,
		Source:    data.Source.String,
		Kind:      data.Kind,
	}
	if data.GroupID.Valid {
		id := data.GroupID.Int64
		entry.GroupID = &id
	}
	if data.Metadata.Valid {
		m := data.Metadata.String
		entry.Metadata = &m
	}
	if data.GroupIndex.Valid {
		index := int(data.GroupIndex.Int64)
		entry.ChannelGroupIndex = &index
	}
	r.current = entry
	return true
}

// Current returns the entry the reader is positioned at.
func (r *LogReader) Current() *LogEntry { return r.current }

// Error returns any error that occurred during iteration.
func (r *LogReader) Error() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

// Close releases the database resources.
func (r *LogReader) Close() error {
	return r.rows.Close()
}
