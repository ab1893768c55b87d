package dbc

import (
	"fmt"
	"os"

	"go.einride.tech/can"
	candbc "go.einride.tech/can/pkg/dbc"
)

// extendedIDFlag marks extended (29-bit) frame IDs in DBC message ids.
const extendedIDFlag = 0x80000000

// canGoBackend parses with the can-go grammar and extracts bits through
// can.Data, which implements both byte orders and signedness correctly.
type canGoBackend struct{}

func (canGoBackend) load(path string) (map[uint32]*Message, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading DBC file: %w", err)
	}

	parser := candbc.NewParser(path, source)
	if err := parser.Parse(); err != nil {
		return nil, fmt.Errorf("parsing DBC file: %w", err)
	}

	messages := make(map[uint32]*Message)
	for _, def := range parser.Defs() {
		messageDef, ok := def.(*candbc.MessageDef)
		if !ok {
			continue
		}

		rawID := uint32(messageDef.MessageID)
		m := &Message{
			ID:       rawID &^ uint32(extendedIDFlag),
			Extended: rawID&extendedIDFlag != 0,
			Name:     string(messageDef.Name),
			Length:   int(messageDef.Size),
			Sender:   string(messageDef.Transmitter),
		}
		for _, signalDef := range messageDef.Signals {
			m.Signals = append(m.Signals, Signal{
				Name:      string(signalDef.Name),
				StartBit:  int(signalDef.StartBit),
				Length:    int(signalDef.Size),
				BigEndian: signalDef.IsBigEndian,
				Signed:    signalDef.IsSigned,
				Scale:     signalDef.Factor,
				Offset:    signalDef.Offset,
				Min:       signalDef.Minimum,
				Max:       signalDef.Maximum,
				Unit:      signalDef.Unit,
			})
		}
		messages[m.ID] = m
	}
	return messages, nil
}

func (canGoBackend) extract(sig *Signal, payload []byte) float64 {
	var data can.Data
	copy(data[:], payload)

	start, length := uint8(sig.StartBit), uint8(sig.Length)
	switch {
	case sig.Signed && sig.BigEndian:
		return float64(data.SignedBitsBigEndian(start, length))
	case sig.Signed:
		return float64(data.SignedBitsLittleEndian(start, length))
	case sig.BigEndian:
		return float64(data.UnsignedBitsBigEndian(start, length))
	default:
		return float64(data.UnsignedBitsLittleEndian(start, length))
	}
}
