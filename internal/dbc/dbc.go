// Package dbc loads CAN database files and decodes raw bus frames into
// named engineering-unit signal values.
//
// Two backends coexist: the go.einride.tech/can parser, which implements
// the full grammar with correct big/little-endian signed bit extraction,
// and a minimal line-oriented fallback that understands only BO_/SG_
// definitions and extracts little-endian unsigned bits. The backend is
// chosen once when the database is opened.
package dbc

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Backend names a DBC parsing/decoding implementation.
type Backend string

const (
	BackendCanGo    Backend = "can-go"
	BackendFallback Backend = "fallback"
)

// DefaultOrder is the backend preference used when none is configured.
var DefaultOrder = []Backend{BackendCanGo, BackendFallback}

// ErrNoBackend is returned when every configured backend fails to load
// the database file.
var ErrNoBackend = errors.New("no DBC backend could load the database")

// Signal is one bit-packed field of a message.
type Signal struct {
	Name      string
	StartBit  int
	Length    int
	BigEndian bool
	Signed    bool
	Scale     float64
	Offset    float64
	Min       float64
	Max       float64
	Unit      string
}

// Message is one frame definition.
type Message struct {
	ID       uint32
	Extended bool
	Name     string
	Length   int
	Sender   string
	Signals  []Signal
}

// SignalValue is one decoded signal.
type SignalValue struct {
	Value float64
	Unit  string
}

type backendImpl interface {
	load(path string) (map[uint32]*Message, error)
	extract(sig *Signal, payload []byte) float64
}

func newBackend(b Backend) (backendImpl, error) {
	switch b {
	case BackendCanGo:
		return canGoBackend{}, nil
	case BackendFallback:
		return fallbackBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown DBC backend '%s'", b)
	}
}

// Database is a loaded CAN database.
type Database struct {
	backend  Backend
	impl     backendImpl
	messages map[uint32]*Message
}

// Open loads the database at path, probing the given backends in order
// (DefaultOrder when none are given).
func Open(path string, backends ...Backend) (*Database, error) {
	if len(backends) == 0 {
		backends = DefaultOrder
	}

	var errs []error
	for _, b := range backends {
		impl, err := newBackend(b)
		if err != nil {
			return nil, err
		}
		messages, err := impl.load(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b, err))
			continue
		}
		return &Database{backend: b, impl: impl, messages: messages}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

// Backend reports which implementation loaded the database.
func (db *Database) Backend() Backend { return db.backend }

// Messages returns all frame definitions ordered by frame ID.
func (db *Database) Messages() []*Message {
	messages := make([]*Message, 0, len(db.messages))
	for _, m := range db.messages {
		messages = append(messages, m)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages
}

// MessageByID looks up a frame definition. The id may be an integer or a
// decimal/hex ("0x...") string.
func (db *Database) MessageByID(id any) (*Message, bool) {
	frameID, err := NormalizeID(id)
	if err != nil {
		return nil, false
	}
	m, ok := db.messages[frameID]
	return m, ok
}

// Decode decodes one frame. A frame ID absent from the database yields
// ("", nil): not an error, the frame is simply undecodable.
func (db *Database) Decode(id any, payload []byte) (string, map[string]SignalValue) {
	m, ok := db.MessageByID(id)
	if !ok {
		return "", nil
	}

	signals := make(map[string]SignalValue, len(m.Signals))
	for i := range m.Signals {
		sig := &m.Signals[i]
		raw := db.impl.extract(sig, payload)
		signals[sig.Name] = SignalValue{
			Value: raw*sig.Scale + sig.Offset,
			Unit:  sig.Unit,
		}
	}
	return m.Name, signals
}

// NormalizeID converts a frame identifier to its numeric form.
func NormalizeID(id any) (uint32, error) {
	switch v := id.(type) {
	case uint32:
		return v, nil
	case int:
		return uint32(v), nil
	case int64:
		return uint32(v), nil
	case uint64:
		return uint32(v), nil
	case string:
		s := strings.TrimSpace(v)
		base := 10
		if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
			s, base = rest, 16
		}
		parsed, err := strconv.ParseUint(s, base, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid frame id %q: %w", v, err)
		}
		return uint32(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported frame id type %T", id)
	}
}
