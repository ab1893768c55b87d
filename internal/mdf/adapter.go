package mdf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

var (
	// ErrUnsupportedFormat is returned by an adapter that does not
	// recognise the container layout of the file.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrChannelNotFound is returned when a channel name resolves to no
	// location inside the open file.
	ErrChannelNotFound = errors.New("channel not found")
)

// Adapter provides uniform access to the channels of one measurement file.
// Open failing with any error means the caller should try the next adapter
// implementation; a Read failing is isolated to that channel.
type Adapter interface {
	// Open parses the container structure of the file at path.
	Open(path string) error

	// Version reports the detected container version, e.g. "MDF 4.10".
	Version() string

	// Channels returns the deduplicated canonical channel names. When the
	// same name occurs in several internal locations only the first
	// occurrence is canonical; the others are reachable through synthetic
	// names of the form "name_g{group}_i{index}".
	Channels() []string

	// ChannelInfo returns unit, description, sample count and element type
	// for one channel.
	ChannelInfo(name string) (*ChannelInfo, error)

	// Read returns the sample array of a channel together with a parallel
	// slice of epoch-second timestamps. Channels without a time master get
	// a synthesized 0..N-1 sequence.
	Read(name string) (*Samples, []float64, error)

	Close() error
}

// GroupIntrospector is implemented by adapters that can describe the
// channel-group partitioning of the open file. Callers must feature-test
// for it; the pipeline degrades to single-group ingestion without it.
type GroupIntrospector interface {
	Groups() []GroupInfo
	ChannelGroupIndex(name string) (int, bool)
}

// Backend names the concrete adapter implementations.
type Backend string

const (
	BackendRow   Backend = "row"   // MDF 3.x, row-oriented
	BackendBlock Backend = "block" // MDF 4.x, block/group-oriented
)

// DefaultOrder is the preference order used when none is configured: the
// row reader is tried first, the block reader is the fallback.
var DefaultOrder = []Backend{BackendRow, BackendBlock}

type openConfig struct {
	order  []Backend
	logger *slog.Logger
}

// WithPreference sets the adapter preference order for Open.
func WithPreference(order ...Backend) func(*openConfig) {
	return func(c *openConfig) {
		if len(order) > 0 {
			c.order = order
		}
	}
}

// WithLogger sets the logger used during adapter selection.
func WithLogger(logger *slog.Logger) func(*openConfig) {
	return func(c *openConfig) {
		c.logger = logger
	}
}

func newAdapter(b Backend) (Adapter, error) {
	switch b {
	case BackendRow:
		return newRowReader(), nil
	case BackendBlock:
		return newBlockReader(), nil
	default:
		return nil, fmt.Errorf("unknown adapter backend '%s'", b)
	}
}

// Open tries the configured adapters in preference order and returns the
// first one that accepts the file, together with its backend name. All
// adapters failing is a file-level open failure.
func Open(path string, options ...func(*openConfig)) (Adapter, Backend, error) {
	cfg := openConfig{
		order:  DefaultOrder,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&cfg)
	}

	var errs []error
	for _, backend := range cfg.order {
		adapter, err := newAdapter(backend)
		if err != nil {
			return nil, "", err
		}

		if err = adapter.Open(path); err != nil {
			cfg.logger.Debug("adapter rejected file",
				slog.String("backend", string(backend)),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", backend, err))
			continue
		}

		cfg.logger.Info("opened measurement file",
			slog.String("backend", string(backend)),
			slog.String("version", adapter.Version()))
		return adapter, backend, nil
	}

	return nil, "", fmt.Errorf("no adapter could open %s: %w", path, errors.Join(errs...))
}
