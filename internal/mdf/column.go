package mdf

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// extractNumericColumn decodes one scalar channel from fixed-size record
// rows. bitOffset/bitCount locate the value inside each row; conv, when
// non-nil, is the linear raw->physical conversion.
func extractNumericColumn(records [][]byte, bitOffset, bitCount int, kind DataKind, order binary.ByteOrder, conv func(float64) float64) (*Samples, error) {
	if bitCount == 0 || bitCount > 64 {
		return nil, fmt.Errorf("unsupported bit count %d", bitCount)
	}

	elemSize := (bitCount + 7) / 8
	samples := &Samples{
		Kind:     kind,
		ElemSize: elemSize,
		Floats:   make([]float64, 0, len(records)),
	}
	if kind == KindUint && bitCount == 8 && bitOffset%8 == 0 {
		samples.Raw = make([]byte, 0, len(records))
	}

	for _, record := range records {
		bits, err := extractBits(record, bitOffset, bitCount, order)
		if err != nil {
			return nil, err
		}

		var value float64
		switch kind {
		case KindFloat:
			switch bitCount {
			case 32:
				value = float64(math.Float32frombits(uint32(bits)))
			case 64:
				value = math.Float64frombits(bits)
			default:
				return nil, fmt.Errorf("unsupported float width %d", bitCount)
			}
		case KindInt:
			value = float64(signExtend(bits, bitCount))
		default:
			value = float64(bits)
		}

		if conv != nil {
			value = conv(value)
		}
		samples.Floats = append(samples.Floats, value)
		if samples.Raw != nil {
			samples.Raw = append(samples.Raw, byte(bits))
		}
	}
	return samples, nil
}

// extractBits reads bitCount bits starting bitOffset bits into the record.
// Byte-aligned standard widths take the fast path; anything else goes
// through a shift over the containing byte span.
func extractBits(record []byte, bitOffset, bitCount int, order binary.ByteOrder) (uint64, error) {
	byteOffset := bitOffset / 8
	shift := bitOffset % 8

	if shift == 0 && bitCount%8 == 0 {
		n := bitCount / 8
		if byteOffset+n > len(record) {
			return 0, fmt.Errorf("value at byte %d width %d exceeds record size %d", byteOffset, n, len(record))
		}
		chunk := record[byteOffset : byteOffset+n]
		switch n {
		case 1:
			return uint64(chunk[0]), nil
		case 2:
			return uint64(order.Uint16(chunk)), nil
		case 4:
			return uint64(order.Uint32(chunk)), nil
		case 8:
			return order.Uint64(chunk), nil
		}
	}

	span := (shift + bitCount + 7) / 8
	if byteOffset+span > len(record) {
		return 0, fmt.Errorf("value at bit %d width %d exceeds record size %d", bitOffset, bitCount, len(record))
	}

	var wide uint64
	chunk := record[byteOffset : byteOffset+span]
	if order == binary.ByteOrder(binary.BigEndian) {
		for _, b := range chunk {
			wide = wide<<8 | uint64(b)
		}
		wide >>= uint(span*8 - shift - bitCount)
	} else {
		for i := len(chunk) - 1; i >= 0; i-- {
			wide = wide<<8 | uint64(chunk[i])
		}
		wide >>= uint(shift)
	}

	if bitCount < 64 {
		wide &= (1 << uint(bitCount)) - 1
	}
	return wide, nil
}

func signExtend(bits uint64, bitCount int) int64 {
	if bitCount >= 64 {
		return int64(bits)
	}
	if bits&(1<<uint(bitCount-1)) != 0 {
		bits |= ^uint64(0) << uint(bitCount)
	}
	return int64(bits)
}

// extractStringColumn decodes a fixed-width character channel, one string
// per record, trimmed at the first NUL. Rows that are not valid UTF-8 are
// kept verbatim; the text decoder deals with them downstream.
func extractStringColumn(records [][]byte, byteOffset, width int) *Samples {
	samples := &Samples{Kind: KindString, Strings: make([]string, 0, len(records))}
	for _, record := range records {
		value := ""
		if byteOffset+width <= len(record) {
			value = cstr(record[byteOffset : byteOffset+width])
		}
		if !utf8.ValidString(value) {
			value = string([]rune(value))
		}
		samples.Strings = append(samples.Strings, value)
	}
	return samples
}

// extractRowColumn decodes a fixed-width byte-array channel into one byte
// row per record.
func extractRowColumn(records [][]byte, byteOffset, width int) *Samples {
	samples := &Samples{Kind: KindByteRows, Rows: make([][]byte, 0, len(records))}
	for _, record := range records {
		row := make([]byte, width)
		if byteOffset+width <= len(record) {
			copy(row, record[byteOffset:byteOffset+width])
		}
		samples.Rows = append(samples.Rows, row)
	}
	return samples
}
