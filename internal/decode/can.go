package decode

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/robotlogs/mdflog/internal/dbc"
	"github.com/robotlogs/mdflog/internal/mdf"
	"github.com/robotlogs/mdflog/internal/record"
)

// canFrameMinLen is the shortest packed frame: 4 byte id, 1 byte length,
// 8 payload bytes.
const canFrameMinLen = 13

// CANDecoder turns bus-frame channels into one record carrying the
// individual frames, decoded into signals when a database is attached.
type CANDecoder struct {
	db     *dbc.Database
	logger *slog.Logger
}

// CANOption configures a CANDecoder.
type CANOption func(*CANDecoder)

// WithDatabase attaches the CAN database used to decode frame payloads.
func WithDatabase(db *dbc.Database) CANOption {
	return func(d *CANDecoder) {
		d.db = db
	}
}

// WithCANLogger sets the logger used to report malformed frames.
func WithCANLogger(logger *slog.Logger) CANOption {
	return func(d *CANDecoder) {
		d.logger = logger
	}
}

func NewCANDecoder(options ...CANOption) *CANDecoder {
	d := &CANDecoder{logger: discardLogger()}
	for _, option := range options {
		option(d)
	}
	return d
}

// Decode extracts frames from packed byte records or "ID:DATA" strings.
// Malformed samples are counted and logged but do not fail the channel.
func (d *CANDecoder) Decode(ch Channel) ([]record.Record, error) {
	n := ch.Samples.Len()

	frames := make([]record.CANFrame, 0, n)
	var decoded, malformed int

	for i := 0; i < n; i++ {
		frame, ok := d.frameAt(ch.Samples, i)
		if !ok {
			malformed++
			d.logger.Warn("skipping malformed bus frame", "channel", ch.Name, "index", i)
			continue
		}
		frame.Timestamp = ch.At(i)

		if d.db != nil {
			name, signals := d.db.Decode(frame.ID, frame.payload)
			if name != "" {
				frame.MessageName = name
				frame.Signals = signalList(signals)
				decoded++
			}
		}
		frames = append(frames, frame.CANFrame)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("channel %s: no decodable frames", ch.Name)
	}

	meta := &CANMetadata{
		Channel:   ch.Name,
		Frames:    len(frames),
		Decoded:   decoded,
		Malformed: malformed,
	}
	if d.db != nil {
		meta.Database = string(d.db.Backend())
	}

	rec := record.Record{
		Timestamp:         frames[0].Timestamp,
		Severity:          record.SeverityInfo,
		Message:           fmt.Sprintf("CAN data from %s: %d frames", ch.Name, len(frames)),
		Source:            ch.Source,
		Kind:              record.KindCAN,
		Metadata:          meta,
		ChannelGroupIndex: ch.GroupIndex,
		Frames:            frames,
	}
	return []record.Record{rec}, nil
}

// rawFrame pairs a domain frame with its undecoded payload bytes.
type rawFrame struct {
	record.CANFrame
	payload []byte
}

func (d *CANDecoder) frameAt(samples *mdf.Samples, i int) (rawFrame, bool) {
	switch samples.Kind {
	case mdf.KindByteRows:
		return unpackFrame(samples.Rows[i])
	case mdf.KindString:
		return parseFrameString(samples.Strings[i])
	default:
		return rawFrame{}, false
	}
}

// unpackFrame reads the packed layout: little-endian uint32 frame id, one
// length byte, then the payload.
func unpackFrame(row []byte) (rawFrame, bool) {
	if len(row) < canFrameMinLen {
		return rawFrame{}, false
	}

	id := binary.LittleEndian.Uint32(row[0:4])
	dlc := int(row[4])
	if dlc > len(row)-5 {
		dlc = len(row) - 5
	}
	payload := row[5 : 5+dlc]

	return rawFrame{
		CANFrame: record.CANFrame{
			ID:      fmt.Sprintf("0x%X", id),
			RawData: strings.ToUpper(hex.EncodeToString(payload)),
		},
		payload: payload,
	}, true
}

// parseFrameString reads the textual "ID:DATA" form, e.g. "0x100:2A00".
// The identifier is hexadecimal, with or without a 0x prefix.
func parseFrameString(s string) (rawFrame, bool) {
	id, data, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return rawFrame{}, false
	}

	idText := strings.TrimSpace(id)
	if rest, found := strings.CutPrefix(strings.ToLower(idText), "0x"); found {
		idText = rest
	}
	frameID, err := strconv.ParseUint(idText, 16, 32)
	if err != nil {
		return rawFrame{}, false
	}
	payload, err := hex.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return rawFrame{}, false
	}

	return rawFrame{
		CANFrame: record.CANFrame{
			ID:      fmt.Sprintf("0x%X", frameID),
			RawData: strings.ToUpper(hex.EncodeToString(payload)),
		},
		payload: payload,
	}, true
}

func signalList(values map[string]dbc.SignalValue) []record.CANSignal {
	if len(values) == 0 {
		return nil
	}
	signals := make([]record.CANSignal, 0, len(values))
	for name, v := range values {
		signals = append(signals, record.CANSignal{
			Name:  name,
			Value: v.Value,
			Unit:  v.Unit,
		})
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].Name < signals[j].Name })
	return signals
}
