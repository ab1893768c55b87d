// Package decode turns classified channel content into domain records.
// Each record kind has its own decoder; the pipeline picks one based on
// the classification result and feeds it the channel's samples and
// timestamps.
package decode

import (
	"io"
	"log/slog"
	"time"

	"github.com/robotlogs/mdflog/internal/mdf"
	"github.com/robotlogs/mdflog/internal/record"
)

// Channel is one channel's content handed to a decoder.
type Channel struct {
	Name        string
	Unit        string
	Description string

	// Samples holds the channel values, Timestamps the matching relative
	// times in seconds. Both have the same length.
	Samples    *mdf.Samples
	Timestamps []float64

	// Base is the absolute time that timestamp zero maps to, normally the
	// recording start of the source file.
	Base time.Time

	// Source labels where the records came from, e.g. the source file name.
	Source string

	// GroupIndex is the channel group the channel belongs to, when the
	// reader exposes group structure. Nil otherwise.
	GroupIndex *int
}

// At converts the i-th relative timestamp to absolute time. Indices past
// the timestamp array fall back to the base time.
func (c *Channel) At(i int) time.Time {
	if i < 0 || i >= len(c.Timestamps) {
		return c.Base
	}
	return c.Base.Add(time.Duration(c.Timestamps[i] * float64(time.Second)))
}

// Decoder turns one classified channel into domain records.
type Decoder interface {
	Decode(Channel) ([]record.Record, error)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TextMetadata is attached to text records.
type TextMetadata struct {
	Channel     string `json:"channel"`
	SampleIndex int    `json:"sample_index"`
	SampleCount int    `json:"sample_count"`
}

// CurveMetadata is attached to curve records.
type CurveMetadata struct {
	Channel     string  `json:"channel"`
	Unit        string  `json:"unit,omitempty"`
	SampleCount int     `json:"samples_count"`
	Skipped     int     `json:"skipped,omitempty"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	Start       float64 `json:"start_time"`
	End         float64 `json:"end_time"`
	Duration    float64 `json:"duration"`
}

// LaserMetadata is attached to laser scan records.
type LaserMetadata struct {
	Channel     string  `json:"channel"`
	SampleCount int     `json:"samples_count"`
	AngleMin    float64 `json:"angle_min"`
	AngleMax    float64 `json:"angle_max"`
	RangeMin    float64 `json:"range_min"`
	RangeMax    float64 `json:"range_max"`
	RangeUnit   string  `json:"range_unit,omitempty"`
}

// ImageMetadata is attached to image records.
type ImageMetadata struct {
	Channel string `json:"channel"`
	Format  string `json:"format,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Bytes   int    `json:"bytes"`
	Error   string `json:"decode_error,omitempty"`
}

// CANMetadata is attached to CAN records.
type CANMetadata struct {
	Channel   string `json:"channel"`
	Frames    int    `json:"frames"`
	Decoded   int    `json:"decoded"`
	Malformed int    `json:"malformed,omitempty"`
	Database  string `json:"database,omitempty"`
}

// UnclassifiedMetadata is attached to the informational record produced
// for a channel no classification rule claimed.
type UnclassifiedMetadata struct {
	Channel     string `json:"channel"`
	SampleCount int    `json:"sample_count"`
	DataType    string `json:"data_type"`
	Unit        string `json:"unit,omitempty"`
}
