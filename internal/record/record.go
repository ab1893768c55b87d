// Package record defines the domain records produced by the ingestion
// pipeline: generic log entries plus the per-kind detail records that hang
// off them.
package record

import "time"

// Severity of a log record.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Kind tags what a log record was classified and decoded as.
type Kind string

const (
	KindText         Kind = "TEXT"
	KindCurve        Kind = "CURVE"
	KindLaser        Kind = "LASER2D"
	KindImage        Kind = "IMAGE"
	KindCAN          Kind = "CAN"
	KindUnclassified Kind = "UNCLASSIFIED"
)

// Record is one classified and decoded unit. Detail records (curve
// samples, scans, images, CAN frames) are attached in memory and persisted
// into their own tables, cascading from the parent row.
type Record struct {
	Timestamp time.Time
	RobotID   string
	Severity  Severity
	Message   string
	Source    string
	Kind      Kind

	// Metadata is the per-kind tagged metadata structure; it is
	// JSON-serialized only at the persistence boundary.
	Metadata any

	// ChannelGroupIndex is the originating channel group of the source
	// file, when known.
	ChannelGroupIndex *int

	Curve  []CurveSample
	Scan   *RangeScan
	Image  *Image
	Frames []CANFrame
}

// CurveSample is one point of a scalar time series.
type CurveSample struct {
	Timestamp  time.Time
	SensorName string
	Value      float64
}

// RangeScan is one 2D laser sweep. Ranges[i] is the distance measured at
// angle AngleMin + i*AngleIncrement.
type RangeScan struct {
	Timestamp      time.Time
	AngleMin       float64
	AngleMax       float64
	AngleIncrement float64
	Ranges         []float64
}

// Angle returns the beam angle of the i-th range measurement.
func (s *RangeScan) Angle(i int) float64 {
	return s.AngleMin + float64(i)*s.AngleIncrement
}

// Image is one decoded raster frame. Payload holds the re-encoded image
// bytes; the storage layer writes it out as a blob file referenced by path.
type Image struct {
	Timestamp   time.Time
	Width       int
	Height      int
	Format      string
	Payload     []byte
	Description string
}

// CANFrame is one bus frame, optionally decoded into named signals.
type CANFrame struct {
	Timestamp   time.Time
	ID          string // hex, e.g. "0x100"
	MessageName string // empty when the frame id is not in the database
	RawData     string // hex payload
	Signals     []CANSignal
}

// CANSignal is one decoded engineering-unit value of a frame.
type CANSignal struct {
	Name  string
	Value float64
	Unit  string
}
