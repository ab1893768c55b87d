package storage

import (
	"database/sql"
	"errors"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	cErr := rb.Rollback()
	if cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func toFile(data *fileData) *MeasurementFile {
	f := &MeasurementFile{
		ID:         data.ID,
		Name:       data.Name,
		Path:       data.Path,
		Version:    data.Version.String,
		Backend:    data.Backend.String,
		RobotID:    data.RobotID.String,
		Processed:  data.Processed,
		UploadedAt: data.UploadedAt,
	}
	if data.DBCID.Valid {
		id := data.DBCID.Int64
		f.DBCID = &id
	}
	if data.GroupsInfo.Valid {
		f.ChannelGroupsInfo = &data.GroupsInfo.String
	}
	return f
}

func toGroup(data *groupData) *Group {
	g := &Group{
		ID:       data.ID,
		ParentID: data.ParentID,
		Name:     data.Name,
		LogCount: data.LogCount,
	}
	if data.Index.Valid {
		index := int(data.Index.Int64)
		g.ChannelGroupIndex = &index
	}
	if data.StartTime.Valid {
		t := data.StartTime.Time
		g.StartTime = &t
	}
	if data.EndTime.Valid {
		t := data.EndTime.Time
		g.EndTime = &t
	}
	return g
}
