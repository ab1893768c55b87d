package storage

import (
	"database/sql"
	"time"
)

// MeasurementFile is one ingested source file.
type MeasurementFile struct {
	ID      int64
	Name    string
	Path    string
	Version string
	Backend string
	RobotID string

	// DBCID links the CAN database the file was decoded against, when one
	// was attached to the ingestion run.
	DBCID *int64

	// Processed is set once the ingestion run over the file completed.
	Processed bool

	// ChannelGroupsInfo is the JSON dump of the file's group layout, when
	// the reader backend exposes one.
	ChannelGroupsInfo *string

	UploadedAt time.Time
}

// DBCFile is one registered CAN database.
type DBCFile struct {
	ID           int64
	Name         string
	Path         string
	Backend      string
	MessageCount int
	UploadedAt   time.Time
}

// Group is one log group. Groups derived from a file's channel groups
// carry the originating group index; manually created groups do not.
type Group struct {
	ID                int64
	ParentID          int64
	Name              string
	ChannelGroupIndex *int
	StartTime         *time.Time
	EndTime           *time.Time
	LogCount          int
}

type fileData struct {
	ID         int64
	Name       string
	Path       string
	Version    sql.NullString
	Backend    sql.NullString
	RobotID    sql.NullString
	DBCID      sql.NullInt64
	Processed  bool
	GroupsInfo sql.NullString
	UploadedAt time.Time
}

type groupData struct {
	ID        int64
	ParentID  int64
	Name      string
	Index     sql.NullInt64
	StartTime sql.NullTime
	EndTime   sql.NullTime
	LogCount  int
}

type logData struct {
	ID         int64
	FileID     int64
	GroupID    sql.NullInt64
	Timestamp  time.Time
	RobotID    sql.NullString
	Severity   string
	Message    string
	Source     sql.NullString
	Kind       string
	Metadata   sql.NullString
	GroupIndex sql.NullInt64
}
