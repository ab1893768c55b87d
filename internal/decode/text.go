package decode

import (
	"fmt"
	"unicode/utf8"

	"github.com/robotlogs/mdflog/internal/mdf"
	"github.com/robotlogs/mdflog/internal/record"
)

// TextDecoder turns string channels into one log record per sample.
type TextDecoder struct{}

func NewTextDecoder() *TextDecoder { return &TextDecoder{} }

// Decode produces one INFO record per sample. Byte payloads that are not
// valid UTF-8 are summarized instead of being stored raw.
func (d *TextDecoder) Decode(ch Channel) ([]record.Record, error) {
	n := ch.Samples.Len()
	records := make([]record.Record, 0, n)

	for i := 0; i < n; i++ {
		text := sampleText(ch.Samples, i)
		records = append(records, record.Record{
			Timestamp: ch.At(i),
			Severity:  record.SeverityInfo,
			Message:   fmt.Sprintf("%s: %s", ch.Name, text),
			Source:    ch.Source,
			Kind:      record.KindText,
			Metadata: &TextMetadata{
				Channel:     ch.Name,
				SampleIndex: i,
				SampleCount: n,
			},
			ChannelGroupIndex: ch.GroupIndex,
		})
	}
	return records, nil
}

func sampleText(samples *mdf.Samples, i int) string {
	switch samples.Kind {
	case mdf.KindString:
		return samples.Strings[i]
	case mdf.KindByteRows:
		row := samples.Rows[i]
		if utf8.Valid(row) {
			return string(row)
		}
		return fmt.Sprintf("<%d binary bytes>", len(row))
	case mdf.KindFloat:
		return fmt.Sprintf("%g", samples.Floats[i])
	case mdf.KindUint, mdf.KindInt:
		return fmt.Sprintf("%d", int64(samples.Floats[i]))
	default:
		return ""
	}
}
