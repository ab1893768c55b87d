// Package pipeline runs the full ingestion of one measurement file: open
// it through the first adapter that accepts it, classify every channel,
// decode the channels into records, persist everything, and reconcile log
// groups with the file's channel groups.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/robotlogs/mdflog/internal/classify"
	"github.com/robotlogs/mdflog/internal/dbc"
	"github.com/robotlogs/mdflog/internal/decode"
	"github.com/robotlogs/mdflog/internal/mdf"
	"github.com/robotlogs/mdflog/internal/record"
	"github.com/robotlogs/mdflog/internal/storage"
)

// Pipeline ingests measurement files into a store.
type Pipeline struct {
	store      storage.Store
	logger     *slog.Logger
	classifier classify.Func
	robotID    string

	db     *dbc.Database
	dbPath string
	dbcID  int64

	order []mdf.Backend

	decoders map[classify.Kind]decode.Decoder

	// openFile is replaceable in tests.
	openFile func(path string) (mdf.Adapter, mdf.Backend, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClassifier replaces the default channel classifier.
func WithClassifier(fn classify.Func) Option {
	return func(p *Pipeline) {
		p.classifier = fn
	}
}

// WithRobotID tags every ingested record with the given robot.
func WithRobotID(robotID string) Option {
	return func(p *Pipeline) {
		p.robotID = robotID
	}
}

// WithDatabase attaches a CAN database used to decode bus frames. The
// path is recorded with the ingested file for traceability.
func WithDatabase(db *dbc.Database, path string) Option {
	return func(p *Pipeline) {
		p.db = db
		p.dbPath = path
	}
}

// WithBackendOrder sets the adapter preference order used to open files.
func WithBackendOrder(order ...mdf.Backend) Option {
	return func(p *Pipeline) {
		if len(order) > 0 {
			p.order = order
		}
	}
}

// New creates a Pipeline writing into the given store.
func New(store storage.Store, options ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		classifier: classify.Classify,
		order:      mdf.DefaultOrder,
	}
	for _, option := range options {
		option(p)
	}

	p.decoders = map[classify.Kind]decode.Decoder{
		classify.Text:    decode.NewTextDecoder(),
		classify.Curve:   decode.NewCurveDecoder(decode.WithCurveLogger(p.logger)),
		classify.Laser2D: decode.NewLaserDecoder(),
		classify.Image:   decode.NewImageDecoder(),
	}

	canOpts := []decode.CANOption{decode.WithCANLogger(p.logger)}
	if p.db != nil {
		canOpts = append(canOpts, decode.WithDatabase(p.db))
	}
	p.decoders[classify.CAN] = decode.NewCANDecoder(canOpts...)

	return p
}

// Options controls one ProcessFile run.
type Options struct {
	// TargetGroupID assigns every record to an existing group instead of
	// deriving groups from the file's channel groups.
	TargetGroupID *int64

	// UseSubgrouping creates one log group per channel group of the file,
	// when the reader backend exposes group structure.
	UseSubgrouping bool
}

// ProcessFile ingests the measurement file at path and returns run
// statistics. Channel-level failures are isolated: a channel that cannot
// be read or decoded produces one ERROR record and the run continues.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, opts Options) (*Stats, error) {
	started := time.Now()

	stats := &Stats{RunID: uuid.NewString()}

	adapter, backend, err := p.open(path)
	if err != nil {
		return nil, fmt.Errorf("opening measurement file: %w", err)
	}
	defer adapter.Close()

	name := filepath.Base(path)
	fileID, err := p.store.CreateMeasurementFile(ctx, name, path, adapter.Version(), string(backend), p.robotID)
	if err != nil {
		return nil, fmt.Errorf("registering measurement file: %w", err)
	}

	stats.FileID = fileID
	stats.ParserBackend = string(backend)
	stats.FormatVersion = adapter.Version()

	if err := p.registerDatabase(ctx, fileID); err != nil {
		return nil, err
	}

	introspector, hasGroups := adapter.(mdf.GroupIntrospector)
	if hasGroups {
		if err := p.store.SetChannelGroupsInfo(ctx, fileID, introspector.Groups()); err != nil {
			return nil, fmt.Errorf("storing group layout: %w", err)
		}
	}

	rec, err := newReconciler(ctx, p.store, fileID, name)
	if err != nil {
		return nil, err
	}

	channels := adapter.Channels()
	stats.TotalChannels = len(channels)

	base := started.UTC()
	for _, channel := range channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.processChannel(ctx, adapter, introspector, hasGroups, rec, fileID, base, channel, opts, stats)
	}

	if err := rec.repair(ctx); err != nil {
		return nil, fmt.Errorf("reconciling groups: %w", err)
	}
	if err := p.store.MarkProcessed(ctx, fileID); err != nil {
		return nil, fmt.Errorf("marking file processed: %w", err)
	}
	stats.FixedRelations = rec.fixed
	stats.ChannelGroupsCreated = rec.created
	stats.ChannelGroups = len(rec.groups)
	stats.Duration = time.Since(started)

	p.logger.Info("ingestion finished",
		slog.String("file", name),
		slog.String("run", stats.RunID),
		slog.Int("channels", stats.TotalChannels),
		slog.Int("logs", stats.Logs()),
		slog.Int("errors", stats.Errors),
		slog.Duration("duration", stats.Duration))

	return stats, nil
}

func (p *Pipeline) open(path string) (mdf.Adapter, mdf.Backend, error) {
	if p.openFile != nil {
		return p.openFile(path)
	}
	return mdf.Open(path, mdf.WithPreference(p.order...), mdf.WithLogger(p.logger))
}

// Channels opens the file just long enough to enumerate its channels.
// It backs the preview step ahead of ingestion; no records are produced.
func (p *Pipeline) Channels(path string) ([]string, error) {
	adapter, _, err := p.open(path)
	if err != nil {
		return nil, fmt.Errorf("opening measurement file: %w", err)
	}
	defer adapter.Close()

	return adapter.Channels(), nil
}

// ChannelInfo returns the metadata of one channel without ingesting the
// file.
func (p *Pipeline) ChannelInfo(path, name string) (*mdf.ChannelInfo, error) {
	adapter, _, err := p.open(path)
	if err != nil {
		return nil, fmt.Errorf("opening measurement file: %w", err)
	}
	defer adapter.Close()

	return adapter.ChannelInfo(name)
}

func (p *Pipeline) processChannel(
	ctx context.Context,
	adapter mdf.Adapter,
	introspector mdf.GroupIntrospector,
	hasGroups bool,
	rec *reconciler,
	fileID int64,
	base time.Time,
	channel string,
	opts Options,
	stats *Stats,
) {
	records, kind, err := p.decodeChannel(adapter, introspector, hasGroups, base, channel)
	if err != nil {
		p.logger.Warn("channel failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		stats.Errors++
		records = []record.Record{{
			Timestamp: base,
			Severity:  record.SeverityError,
			Message:   fmt.Sprintf("Failed to process channel %s: %s", channel, err),
			Source:    channel,
			Kind:      record.KindText,
		}}
	} else if kind == classify.Unclassified {
		stats.Unclassified++
		p.logger.Debug("channel not classified", slog.String("channel", channel))
	} else {
		stats.count(kind, records)
	}

	groupID := opts.TargetGroupID
	if groupID == nil && opts.UseSubgrouping && hasGroups {
		if index, ok := introspector.ChannelGroupIndex(channel); ok {
			id, groupErr := rec.groupFor(ctx, index)
			if groupErr != nil {
				p.logger.Warn("group creation failed",
					slog.Int("index", index),
					slog.String("error", groupErr.Error()))
			} else {
				groupID = &id
			}
		}
	}

	for i := range records {
		if records[i].RobotID == "" {
			records[i].RobotID = p.robotID
		}
	}

	if err := p.store.StoreRecords(ctx, fileID, groupID, records); err != nil {
		p.logger.Error("storing records failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		stats.Errors++
	}
}

// decodeChannel reads, classifies and decodes one channel. A channel no
// rule claims produces a single informational record with its raw shape.
func (p *Pipeline) decodeChannel(
	adapter mdf.Adapter,
	introspector mdf.GroupIntrospector,
	hasGroups bool,
	base time.Time,
	channel string,
) ([]record.Record, classify.Kind, error) {
	samples, timestamps, err := adapter.Read(channel)
	if err != nil {
		return nil, classify.Unclassified, fmt.Errorf("reading channel: %w", err)
	}

	kind := p.classifier(channel, samples)
	if kind == classify.Unclassified {
		meta := decode.UnclassifiedMetadata{
			Channel:     channel,
			SampleCount: samples.Len(),
			DataType:    samples.DType(),
		}
		if info, infoErr := adapter.ChannelInfo(channel); infoErr == nil {
			meta.Unit = info.Unit
		}
		rec := record.Record{
			Timestamp: base,
			Severity:  record.SeverityInfo,
			Message:   fmt.Sprintf("Unclassified channel %s: %d samples of %s", channel, samples.Len(), samples.DType()),
			Source:    channel,
			Kind:      record.KindUnclassified,
			Metadata:  meta,
		}
		if hasGroups {
			if index, ok := introspector.ChannelGroupIndex(channel); ok {
				rec.ChannelGroupIndex = &index
			}
		}
		return []record.Record{rec}, kind, nil
	}

	decoder, ok := p.decoders[kind]
	if !ok {
		return nil, kind, fmt.Errorf("no decoder for kind %s", kind)
	}

	ch := decode.Channel{
		Name:       channel,
		Samples:    samples,
		Timestamps: timestamps,
		Base:       base,
		Source:     channel,
	}
	if info, infoErr := adapter.ChannelInfo(channel); infoErr == nil {
		ch.Unit = info.Unit
		ch.Description = info.Description
	}
	if hasGroups {
		if index, ok := introspector.ChannelGroupIndex(channel); ok {
			ch.GroupIndex = &index
		}
	}

	records, err := decoder.Decode(ch)
	if err != nil {
		return nil, kind, fmt.Errorf("decoding channel: %w", err)
	}
	return records, kind, nil
}

// registerDatabase stores the attached CAN database on first use and
// links it to the measurement file being ingested.
func (p *Pipeline) registerDatabase(ctx context.Context, fileID int64) error {
	if p.db == nil || p.dbPath == "" {
		return nil
	}

	if p.dbcID == 0 {
		name := filepath.Base(p.dbPath)
		id, err := p.store.CreateDBCFile(ctx, name, p.dbPath, string(p.db.Backend()), len(p.db.Messages()))
		if err != nil {
			return fmt.Errorf("registering CAN database: %w", err)
		}
		p.dbcID = id
	}

	if err := p.store.SetDBCFile(ctx, fileID, p.dbcID); err != nil {
		return fmt.Errorf("linking CAN database: %w", err)
	}
	return nil
}
