package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/robotlogs/mdflog/internal/record"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	blobs  *BlobStore

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// StoreOption configures a SqliteStore.
type StoreOption func(*SqliteStore)

// WithBlobStore makes the store write image payloads to files through the
// given blob store, keeping only the path in the database. Without it,
// payloads are stored inline.
func WithBlobStore(blobs *BlobStore) StoreOption {
	return func(s *SqliteStore) {
		s.blobs = blobs
	}
}

// NewSqliteStore creates a new database connection and initializes the
// schema using the Sqlite database
func NewSqliteStore(dbPath string, options ...StoreOption) *SqliteStore {
	s := &SqliteStore{dbPath: dbPath}
	for _, option := range options {
		option(s)
	}
	return s
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateMeasurementFile(ctx context.Context, name, path, version, backend, robotID string) (fileID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertFileSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, name, path, nullString(version), nullString(backend), nullString(robotID))
	if err != nil {
		err = fmt.Errorf("inserting measurement file: %w", err)
		return
	}

	fileID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting file ID: %w", err)
	}
	return
}

func (s *SqliteStore) SetChannelGroupsInfo(ctx context.Context, fileID int64, info any) (err error) {
	var infoData sql.NullString

	if info != nil {
		switch v := info.(type) {
		case string:
			infoData.Valid = true
			infoData.String = v

		case []byte:
			infoData.Valid = true
			infoData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(info); err != nil {
				return fmt.Errorf("marshaling groups info: %w", err)
			}

			infoData.Valid = true
			infoData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, updateFileGroupsInfoSQL, infoData, fileID); err != nil {
		return fmt.Errorf("updating groups info: %w", err)
	}
	return nil
}

func (s *SqliteStore) SetDBCFile(ctx context.Context, fileID, dbcID int64) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, updateFileDBCSQL, dbcID, fileID); err != nil {
		return fmt.Errorf("linking DBC file: %w", err)
	}
	return nil
}

func (s *SqliteStore) MarkProcessed(ctx context.Context, fileID int64) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, markFileProcessedSQL, fileID); err != nil {
		return fmt.Errorf("marking file processed: %w", err)
	}
	return nil
}

func (s *SqliteStore) MeasurementFile(ctx context.Context, id int64) (file *MeasurementFile, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectFileSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data fileData
	if err = stmt.QueryRowContext(ctx, id).Scan(
		&data.ID,
		&data.Name,
		&data.Path,
		&data.Version,
		&data.Backend,
		&data.RobotID,
		&data.DBCID,
		&data.Processed,
		&data.GroupsInfo,
		&data.UploadedAt,
	); err != nil {
		err = fmt.Errorf("scanning measurement file: %w", err)
		return
	}

	return toFile(&data), nil
}

func (s *SqliteStore) MeasurementFiles(ctx context.Context) (files []*MeasurementFile, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFilesSQL)
	if err != nil {
		err = fmt.Errorf("querying measurement files: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data fileData
		if err = rows.Scan(
			&data.ID,
			&data.Name,
			&data.Path,
			&data.Version,
			&data.Backend,
			&data.RobotID,
			&data.DBCID,
			&data.Processed,
			&data.GroupsInfo,
			&data.UploadedAt,
		); err != nil {
			err = fmt.Errorf("scanning measurement file: %w", err)
			return
		}
		files = append(files, toFile(&data))
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) CreateDBCFile(ctx context.Context, name, path, backend string, messageCount int) (dbcID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertDBCFileSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, name, path, nullString(backend), messageCount)
	if err != nil {
		err = fmt.Errorf("inserting DBC file: %w", err)
		return
	}

	dbcID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting DBC file ID: %w", err)
	}
	return
}

func (s *SqliteStore) CreateGroup(ctx context.Context, fileID int64, name string, channelGroupIndex *int) (groupID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertGroupSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, fileID, name, nullInt(channelGroupIndex))
	if err != nil {
		err = fmt.Errorf("inserting group: %w", err)
		return
	}

	groupID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting group ID: %w", err)
	}
	return
}

func (s *SqliteStore) Groups(ctx context.Context, fileID int64) (groups []*Group, err error) {
	// Groups are read through the write connection so that groups created
	// in the same ingestion run are visible before the WAL is checkpointed.
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectGroupsSQL, fileID)
	if err != nil {
		err = fmt.Errorf("querying groups: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data groupData
		if err = rows.Scan(
			&data.ID,
			&data.ParentID,
			&data.Name,
			&data.Index,
			&data.StartTime,
			&data.EndTime,
			&data.LogCount,
		); err != nil {
			err = fmt.Errorf("scanning group: %w", err)
			return
		}
		groups = append(groups, toGroup(&data))
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreRecords(ctx context.Context, fileID int64, groupID *int64, records []record.Record) (err error) {
	if len(records) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	logStmt, err := tx.PrepareContext(ctx, insertLogSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(logStmt, &err)

	for i := range records {
		if err = s.storeRecord(ctx, tx, logStmt, fileID, groupID, &records[i]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) storeRecord(ctx context.Context, tx *sql.Tx, logStmt *sql.Stmt, fileID int64, groupID *int64, rec *record.Record) error {
	var metadata sql.NullString
	if rec.Metadata != nil {
		p, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		metadata.Valid = true
		metadata.String = string(p)
	}

	result, err := logStmt.ExecContext(
		ctx,
		fileID,
		nullInt64(groupID),
		rec.Timestamp.UTC(),
		nullString(rec.RobotID),
		string(rec.Severity),
		rec.Message,
		nullString(rec.Source),
		string(rec.Kind),
		metadata,
		nullInt(rec.ChannelGroupIndex),
	)
	if err != nil {
		return fmt.Errorf("inserting log: %w", err)
	}

	logID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting log ID: %w", err)
	}

	if len(rec.Curve) > 0 {
		if err = storeCurve(ctx, tx, logID, rec.Curve); err != nil {
			return err
		}
	}
	if rec.Scan != nil {
		if err = storeScan(ctx, tx, logID, rec.Scan); err != nil {
			return err
		}
	}
	if rec.Image != nil {
		if err = s.storeImage(ctx, tx, logID, rec.Image); err != nil {
			return err
		}
	}
	if len(rec.Frames) > 0 {
		if err = storeFrames(ctx, tx, logID, rec.Frames); err != nil {
			return err
		}
	}
	return nil
}

func storeCurve(ctx context.Context, tx *sql.Tx, logID int64, curve []record.CurveSample) (err error) {
	stmt, err := tx.PrepareContext(ctx, insertCurveSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, sample := range curve {
		if _, err = stmt.ExecContext(ctx, logID, sample.Timestamp.UTC(), sample.SensorName, sample.Value); err != nil {
			return fmt.Errorf("inserting curve measurement: %w", err)
		}
	}
	return nil
}

func storeScan(ctx context.Context, tx *sql.Tx, logID int64, scan *record.RangeScan) error {
	ranges, err := json.Marshal(scan.Ranges)
	if err != nil {
		return fmt.Errorf("marshaling ranges: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		insertScanSQL,
		logID,
		scan.Timestamp.UTC(),
		scan.AngleMin,
		scan.AngleMax,
		scan.AngleIncrement,
		string(ranges),
	)
	if err != nil {
		return fmt.Errorf("inserting laser scan: %w", err)
	}
	return nil
}

func (s *SqliteStore) storeImage(ctx context.Context, tx *sql.Tx, logID int64, img *record.Image) error {
	var path sql.NullString
	var data []byte

	if s.blobs != nil {
		p, err := s.blobs.Write(logID, img.Format, img.Payload)
		if err != nil {
			return fmt.Errorf("writing image blob: %w", err)
		}
		path = nullString(p)
	} else {
		data = img.Payload
	}

	_, err := tx.ExecContext(
		ctx,
		insertImageSQL,
		logID,
		img.Timestamp.UTC(),
		img.Width,
		img.Height,
		nullString(img.Format),
		path,
		data,
		nullString(img.Description),
	)
	if err != nil {
		return fmt.Errorf("inserting image: %w", err)
	}
	return nil
}

func storeFrames(ctx context.Context, tx *sql.Tx, logID int64, frames []record.CANFrame) (err error) {
	messageStmt, err := tx.PrepareContext(ctx, insertCANMessageSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(messageStmt, &err)

	signalStmt, err := tx.PrepareContext(ctx, insertCANSignalSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(signalStmt, &err)

	for _, frame := range frames {
		result, execErr := messageStmt.ExecContext(
			ctx,
			logID,
			frame.Timestamp.UTC(),
			frame.ID,
			nullString(frame.MessageName),
			nullString(frame.RawData),
		)
		if execErr != nil {
			return fmt.Errorf("inserting CAN message: %w", execErr)
		}

		messageID, idErr := result.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("getting CAN message ID: %w", idErr)
		}

		for _, signal := range frame.Signals {
			if _, err = signalStmt.ExecContext(ctx, messageID, signal.Name, signal.Value, nullString(signal.Unit)); err != nil {
				return fmt.Errorf("inserting CAN signal: %w", err)
			}
		}
	}
	return nil
}

func (s *SqliteStore) ReassignMismatchedLogs(ctx context.Context, fileID int64) (fixed int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	result, err := db.ExecContext(ctx, reassignLogsSQL, fileID)
	if err != nil {
		err = fmt.Errorf("reassigning logs: %w", err)
		return
	}

	fixed, err = result.RowsAffected()
	if err != nil {
		err = fmt.Errorf("getting affected rows: %w", err)
	}
	return
}

func (s *SqliteStore) RefreshGroupStats(ctx context.Context, fileID int64) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, refreshGroupStatsSQL, fileID); err != nil {
		return fmt.Errorf("refreshing group stats: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
