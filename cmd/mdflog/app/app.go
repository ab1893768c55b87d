package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/robotlogs/mdflog/internal/dbc"
	"github.com/robotlogs/mdflog/internal/pipeline"
	"github.com/robotlogs/mdflog/internal/storage"
)

const storageDir = "data"

// Run ingests every given measurement file into a fresh database under
// the configured data directory and prints a summary per file.
func Run(ctx context.Context, config *Config, logger *slog.Logger, files []string) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	options := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithRobotID(config.Settings.RobotID),
	}

	order, err := config.Parser.Order()
	if err != nil {
		return err
	}
	options = append(options, pipeline.WithBackendOrder(order...))

	if config.CAN.Database != "" {
		backends, err := config.CAN.Order()
		if err != nil {
			return err
		}
		db, err := dbc.Open(config.CAN.Database, backends...)
		if err != nil {
			return fmt.Errorf("failed to load CAN database: %w", err)
		}
		logger.Info("CAN database loaded",
			slog.String("path", config.CAN.Database),
			slog.String("backend", string(db.Backend())),
			slog.Int("messages", len(db.Messages())))
		options = append(options, pipeline.WithDatabase(db, config.CAN.Database))
	}

	p := pipeline.New(store, options...)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := p.ProcessFile(ctx, file, pipeline.Options{
			UseSubgrouping: config.Parser.Subgrouping,
		})
		if err != nil {
			return fmt.Errorf("processing %s: %w", file, err)
		}
		printSummary(file, stats)
	}

	return nil
}

func printSummary(file string, stats *pipeline.Stats) {
	fmt.Printf("%s (%s, %s backend)\n", filepath.Base(file), stats.FormatVersion, stats.ParserBackend)
	fmt.Printf("  run %s, %s channels, %s groups (%d created)\n",
		stats.RunID,
		humanize.Comma(int64(stats.TotalChannels)),
		humanize.Comma(int64(stats.ChannelGroups)),
		stats.ChannelGroupsCreated)
	fmt.Printf("  logs: %s text, %s curve, %s laser, %s image, %s can\n",
		humanize.Comma(int64(stats.TextLogs)),
		humanize.Comma(int64(stats.CurveLogs)),
		humanize.Comma(int64(stats.LaserLogs)),
		humanize.Comma(int64(stats.ImageLogs)),
		humanize.Comma(int64(stats.CANLogs)))
	fmt.Printf("  detail: %s curve points, %s can frames, %s signals\n",
		humanize.Comma(int64(stats.CurveMeasurements)),
		humanize.Comma(int64(stats.CANMessages)),
		humanize.Comma(int64(stats.CANSignals)))
	if stats.Errors > 0 || stats.FixedRelations > 0 {
		fmt.Printf("  %d errors, %d relations fixed\n", stats.Errors, stats.FixedRelations)
	}
	fmt.Printf("  finished in %s\n", stats.Duration.Round(time.Millisecond))
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dataDir := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dataDir = filepath.Join(wd, config.DataDirectory)
	}

	stat, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dataDir, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dataDir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dataDir)
	}

	dbPath := filepath.Join(dataDir, fmt.Sprintf("robot_logs_%s.sqlite", time.Now().UTC().Format("20060102_150405")))

	var options []storage.StoreOption
	if config.ImageBlobs {
		blobs, err := storage.NewBlobStore(filepath.Join(dataDir, "images"))
		if err != nil {
			return nil, fmt.Errorf("creating blob storage: %w", err)
		}
		options = append(options, storage.WithBlobStore(blobs))
	}

	return storage.NewSqliteStore(dbPath, options...), nil
}
