package pipeline

import (
	"time"

	"github.com/robotlogs/mdflog/internal/classify"
	"github.com/robotlogs/mdflog/internal/record"
)

// Stats summarizes one ingestion run.
type Stats struct {
	RunID string `json:"run_id"`

	FileID        int64  `json:"file_id"`
	ParserBackend string `json:"parser_backend"`
	FormatVersion string `json:"format_version"`

	TotalChannels        int `json:"total_channels"`
	ChannelGroups        int `json:"channel_groups"`
	ChannelGroupsCreated int `json:"channel_groups_created"`

	TextLogs  int `json:"text_logs"`
	CurveLogs int `json:"curve_logs"`
	LaserLogs int `json:"laser_logs"`
	ImageLogs int `json:"image_logs"`
	CANLogs   int `json:"can_logs"`

	CurveMeasurements int `json:"curve_measurements"`
	CANMessages       int `json:"can_messages"`
	CANSignals        int `json:"can_signals"`

	Unclassified   int   `json:"unclassified"`
	Errors         int   `json:"errors"`
	FixedRelations int64 `json:"fixed_relations"`

	Duration time.Duration `json:"duration"`
}

// Logs returns the total number of log records written.
func (s *Stats) Logs() int {
	return s.TextLogs + s.CurveLogs + s.LaserLogs + s.ImageLogs + s.CANLogs + s.Errors
}

func (s *Stats) count(kind classify.Kind, records []record.Record) {
	switch kind {
	case classify.Text:
		s.TextLogs += len(records)
	case classify.Curve:
		s.CurveLogs += len(records)
	case classify.Laser2D:
		s.LaserLogs += len(records)
	case classify.Image:
		s.ImageLogs += len(records)
	case classify.CAN:
		s.CANLogs += len(records)
	}

	for i := range records {
		s.CurveMeasurements += len(records[i].Curve)
		s.CANMessages += len(records[i].Frames)
		for j := range records[i].Frames {
			s.CANSignals += len(records[i].Frames[j].Signals)
		}
	}
}
