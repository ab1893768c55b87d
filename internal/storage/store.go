package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/robotlogs/mdflog/internal/record"
)

// Store provides an interface for persisting ingested measurement data.
// It handles measurement files, log groups, log records and their per-kind
// detail rows in a thread-safe manner. All operations that write to the
// database should be considered atomic.
type Store interface {
	// CreateMeasurementFile registers a source file and returns its unique
	// identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - name: Display name of the file (e.g. base name)
	//   - path: Location the file was read from
	//   - version: Format version reported by the reader (e.g. "3.30")
	//   - backend: Reader backend that parsed the file
	//   - robotID: Robot the recording belongs to, may be empty
	//
	// Returns:
	//   - fileID: Unique identifier for the created file record
	//   - error: If creation fails or context is cancelled
	CreateMeasurementFile(ctx context.Context, name, path, version, backend, robotID string) (fileID int64, err error)

	// SetChannelGroupsInfo stores the JSON group layout of a file. The
	// info may be a string, []byte, or any JSON-serializable value.
	SetChannelGroupsInfo(ctx context.Context, fileID int64, info any) error

	// MarkProcessed flags a file as fully ingested.
	MarkProcessed(ctx context.Context, fileID int64) error

	// MeasurementFile retrieves a specific file record by its ID.
	MeasurementFile(ctx context.Context, id int64) (*MeasurementFile, error)

	// MeasurementFiles returns all file records ordered by upload time.
	MeasurementFiles(ctx context.Context) ([]*MeasurementFile, error)

	// CreateDBCFile registers a CAN database used during ingestion and
	// returns its unique identifier.
	CreateDBCFile(ctx context.Context, name, path, backend string, messageCount int) (int64, error)

	// SetDBCFile links a measurement file to the CAN database it was
	// decoded against.
	SetDBCFile(ctx context.Context, fileID, dbcID int64) error

	// CreateGroup creates a log group under the given file. Groups that
	// mirror a channel group of the source file carry its index; the
	// (file, index) pair is unique.
	CreateGroup(ctx context.Context, fileID int64, name string, channelGroupIndex *int) (int64, error)

	// Groups returns all log groups of a file ordered by group index.
	Groups(ctx context.Context, fileID int64) ([]*Group, error)

	// StoreRecords saves a batch of records and their detail rows in a
	// single transaction. groupID, when non-nil, assigns every record in
	// the batch to that group.
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreRecords(ctx context.Context, fileID int64, groupID *int64, records []record.Record) error

	// ReassignMismatchedLogs repairs group assignments for a file: every
	// log whose channel group index points at an existing group but whose
	// group assignment is missing or different is moved to that group.
	//
	// Returns:
	//   - fixed: Number of logs whose assignment changed
	//   - error: If the repair fails or context is cancelled
	ReassignMismatchedLogs(ctx context.Context, fileID int64) (fixed int64, err error)

	// RefreshGroupStats recomputes log_count, start_time and end_time of
	// every group of the file from its assigned logs.
	RefreshGroupStats(ctx context.Context, fileID int64) error

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}
