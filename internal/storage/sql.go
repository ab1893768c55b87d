package storage

import (
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_logs_file ON logs (file_id);
CREATE INDEX IF NOT EXISTS idx_logs_group ON logs (group_id);
CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs (timestamp);
CREATE INDEX IF NOT EXISTS idx_groups_parent ON log_groups (parent_id);
CREATE INDEX IF NOT EXISTS idx_curves_log ON curve_measurements (log_id);
CREATE INDEX IF NOT EXISTS idx_scans_log ON laser_scans (log_id);
CREATE INDEX IF NOT EXISTS idx_images_log ON images (log_id);
CREATE INDEX IF NOT EXISTS idx_can_messages_log ON can_messages (log_id);
CREATE INDEX IF NOT EXISTS idx_can_signals_message ON can_signals (message_id);
`

const (
	insertFileSQL = `
INSERT INTO measurement_files (name,
                               path,
                               version,
                               backend,
                               robot_id)
VALUES (?, ?, ?, ?, ?)`

	updateFileGroupsInfoSQL = `
UPDATE measurement_files
SET channel_groups_info = ?
WHERE id = ?`

	markFileProcessedSQL = `
UPDATE measurement_files
SET processed = 1
WHERE id = ?`

	updateFileDBCSQL = `
UPDATE measurement_files
SET dbc_id = ?
WHERE id = ?`

	selectFileSQL = `
SELECT
    id,
    name,
    path,
    version,
    backend,
    robot_id,
    dbc_id,
    processed,
    channel_groups_info,
    uploaded_at
FROM measurement_files
WHERE
    id = ?`

	selectFilesSQL = `
SELECT
    id,
    name,
    path,
    version,
    backend,
    robot_id,
    dbc_id,
    processed,
    channel_groups_info,
    uploaded_at
FROM measurement_files
ORDER BY uploaded_at`

	insertDBCFileSQL = `
INSERT INTO dbc_files (name,
                       path,
                       backend,
                       message_count)
VALUES (?, ?, ?, ?)`

	insertGroupSQL = `
INSERT INTO log_groups (parent_id,
                        name,
                        channel_group_index)
VALUES (?, ?, ?)`

	selectGroupsSQL = `
SELECT
    id,
    parent_id,
    name,
    channel_group_index,
    start_time,
    end_time,
    log_count
FROM log_groups
WHERE
    parent_id = ?
ORDER BY channel_group_index`

	insertLogSQL = `
INSERT INTO logs (file_id,
                  group_id,
                  timestamp,
                  robot_id,
                  severity,
                  message,
                  source,
                  kind,
                  metadata,
                  channel_group_index)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertCurveSQL = `
INSERT INTO curve_measurements (log_id,
                                timestamp,
                                sensor_name,
                                value)
VALUES (?, ?, ?, ?)`

	insertScanSQL = `
INSERT INTO laser_scans (log_id,
                         timestamp,
                         angle_min,
                         angle_max,
                         angle_increment,
                         ranges)
VALUES (?, ?, ?, ?, ?, ?)`

	insertImageSQL = `
INSERT INTO images (log_id,
                    timestamp,
                    width,
                    height,
                    format,
                    path,
                    data,
                    description)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertCANMessageSQL = `
INSERT INTO can_messages (log_id,
                          timestamp,
                          frame_id,
                          message_name,
                          raw_data)
VALUES (?, ?, ?, ?, ?)`

	insertCANSignalSQL = `
INSERT INTO can_signals (message_id,
                         name,
                         value,
                         unit)
VALUES (?, ?, ?, ?)`

	reassignLogsSQL = `
UPDATE logs
SET group_id = (SELECT g.id
                FROM log_groups g
                WHERE g.parent_id = logs.file_id
                  AND g.channel_group_index = logs.channel_group_index)
WHERE
    file_id = ?
    AND channel_group_index IS NOT NULL
    AND EXISTS (SELECT 1
                FROM log_groups g
                WHERE g.parent_id = logs.file_id
                  AND g.channel_group_index = logs.channel_group_index)
    AND (group_id IS NULL
         OR group_id <> (SELECT g.id
                         FROM log_groups g
                         WHERE g.parent_id = logs.file_id
                           AND g.channel_group_index = logs.channel_group_index))`

	refreshGroupStatsSQL = `
UPDATE log_groups
SET log_count = (SELECT COUNT(*) FROM logs WHERE logs.group_id = log_groups.id),
    start_time = (SELECT MIN(timestamp) FROM logs WHERE logs.group_id = log_groups.id),
    end_time = (SELECT MAX(timestamp) FROM logs WHERE logs.group_id = log_groups.id)
WHERE
    parent_id = ?`
)
