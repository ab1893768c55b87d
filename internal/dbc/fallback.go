package dbc

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	messagePattern = regexp.MustCompile(`^BO_ (\d+) ([^:]+): (\d+) (\S+)`)
	signalPattern  = regexp.MustCompile(`^SG_ (\S+) : (\d+)\|(\d+)@([01])([+-]) \(([^,]+),([^)]+)\) \[([^|]*)\|([^\]]*)\] "([^"]*)"`)
)

// fallbackBackend is the minimal line-oriented parser used when the full
// grammar backend cannot load a file. Its bit extraction is deliberately
// simplified: payload interpreted as one little-endian integer, unsigned
// values only, no multiplexed signals. These are accepted limitations of
// the fallback path, not silent behavior to paper over.
type fallbackBackend struct{}

func (fallbackBackend) load(path string) (map[uint32]*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening DBC file: %w", err)
	}
	defer f.Close()

	messages := make(map[uint32]*Message)
	var current *Message

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if match := messagePattern.FindStringSubmatch(line); match != nil {
			id, err := strconv.ParseUint(match[1], 10, 32)
			if err != nil {
				current = nil
				continue
			}
			length, _ := strconv.Atoi(match[3])

			rawID := uint32(id)
			current = &Message{
				ID:       rawID &^ uint32(extendedIDFlag),
				Extended: rawID&extendedIDFlag != 0,
				Name:     strings.TrimSpace(match[2]),
				Length:   length,
				Sender:   match[4],
			}
			messages[current.ID] = current
			continue
		}

		match := signalPattern.FindStringSubmatch(line)
		if match == nil || current == nil {
			continue
		}
		sig, err := parseSignal(match)
		if err != nil {
			continue // malformed signal line, skip it like the source does
		}
		current.Signals = append(current.Signals, sig)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading DBC file: %w", err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no message definitions found in %s", path)
	}
	return messages, nil
}

func parseSignal(match []string) (Signal, error) {
	startBit, err := strconv.Atoi(match[2])
	if err != nil {
		return Signal{}, err
	}
	length, err := strconv.Atoi(match[3])
	if err != nil {
		return Signal{}, err
	}
	scale, err := strconv.ParseFloat(strings.TrimSpace(match[6]), 64)
	if err != nil {
		return Signal{}, err
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(match[7]), 64)
	if err != nil {
		return Signal{}, err
	}

	minVal, _ := strconv.ParseFloat(strings.TrimSpace(match[8]), 64)
	maxVal, _ := strconv.ParseFloat(strings.TrimSpace(match[9]), 64)

	return Signal{
		Name:      match[1],
		StartBit:  startBit,
		Length:    length,
		BigEndian: match[4] == "0", // DBC: @0 is big-endian, @1 little
		Signed:    match[5] == "-",
		Scale:     scale,
		Offset:    offset,
		Min:       minVal,
		Max:       maxVal,
		Unit:      match[10],
	}, nil
}

// extract pulls length bits at startBit out of the payload interpreted as
// a single little-endian integer. Byte order and signedness declared by
// the signal are ignored on this path.
func (fallbackBackend) extract(sig *Signal, payload []byte) float64 {
	var wide uint64
	n := len(payload)
	if n > 8 {
		n = 8
	}
	for i := n - 1; i >= 0; i-- {
		wide = wide<<8 | uint64(payload[i])
	}

	wide >>= uint(sig.StartBit)
	if sig.Length < 64 {
		wide &= (1 << uint(sig.Length)) - 1
	}
	return float64(wide)
}
