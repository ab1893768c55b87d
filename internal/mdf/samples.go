package mdf

import "fmt"

// DataKind describes the element type of a channel's sample array.
type DataKind uint8

const (
	KindUnknown DataKind = iota
	KindUint
	KindInt
	KindFloat
	KindString
	KindByteRows // fixed-width byte records, one row per sample
)

// String returns a dtype-style label, e.g. "uint8" or "bytes16".
func (k DataKind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindByteRows:
		return "bytes"
	default:
		return "unknown"
	}
}

// Samples is the uniform sample array produced by an Adapter. Exactly one
// of Floats, Strings or Rows is populated, depending on Kind. Raw carries
// the undecoded column bytes for single-byte unsigned channels, so that
// consumers treating the channel as an opaque payload (image decoding) do
// not need to round-trip through float64.
type Samples struct {
	Kind     DataKind
	ElemSize int // bytes per scalar element (0 for strings and rows)

	Floats  []float64
	Strings []string
	Rows    [][]byte
	Raw     []byte
}

// Len returns the number of samples.
func (s *Samples) Len() int {
	switch s.Kind {
	case KindString:
		return len(s.Strings)
	case KindByteRows:
		return len(s.Rows)
	default:
		return len(s.Floats)
	}
}

// RowWidth returns the fixed row width for byte-record channels, or 0.
func (s *Samples) RowWidth() int {
	if s.Kind != KindByteRows || len(s.Rows) == 0 {
		return 0
	}
	return len(s.Rows[0])
}

// IsNumeric reports whether the samples are scalar numbers.
func (s *Samples) IsNumeric() bool {
	switch s.Kind {
	case KindUint, KindInt, KindFloat:
		return true
	}
	return false
}

// DType returns a short dtype label including the element width,
// e.g. "uint8", "float64", "bytes13".
func (s *Samples) DType() string {
	switch s.Kind {
	case KindByteRows:
		return fmt.Sprintf("bytes%d", s.RowWidth())
	case KindString:
		return "string"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("%s%d", s.Kind, s.ElemSize*8)
	}
}

// ChannelInfo is per-channel metadata exposed by an Adapter.
type ChannelInfo struct {
	Name        string
	Unit        string
	Description string
	SampleCount int
	DataType    string
}

// GroupInfo describes one channel group inside a measurement file.
type GroupInfo struct {
	Index       int      `json:"index"`
	Comment     string   `json:"comment,omitempty"`
	RecordCount int      `json:"record_count"`
	Channels    []string `json:"channels"`
}
