// Package library is a SQLite-backed media library. It serves aspects of
// media items and stores per-item analysis records.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Sumatoshi-tech/analysisd/pkg/media"
)

// Sentinel errors.
var (
	// ErrNoAspects is returned when an item without aspects is analyzed.
	ErrNoAspects = errors.New("media item has no aspects to analyze")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Config configures Open.
type Config struct {
	// DSN is the SQLite data source, e.g. "library.db" or ":memory:".
	DSN string

	// Debug logs every SQL statement.
	Debug bool

	Logger *slog.Logger
}

// Library implements the media index and analyzer used by the pipeline.
type Library struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the library database and migrates its schema.
func Open(cfg Config) (*Library, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open library %q: %w", cfg.DSN, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("library connection pool: %w", err)
	}

	// SQLite has a single writer, and each ":memory:" connection is a separate database.
	sqlDB.SetMaxOpenConns(1)

	migrateErr := db.AutoMigrate(&MediaItem{}, &Aspect{}, &Analysis{})
	if migrateErr != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("migrate library: %w", migrateErr)
	}

	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}

	return &Library{db: db, logger: lg, now: time.Now}, nil
}

// Close releases the database.
func (l *Library) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Ping checks that the database answers.
func (l *Library) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// PutMediaItem inserts or replaces a media item and all of its aspects.
func (l *Library) PutMediaItem(ctx context.Context, item media.Item, title string) error {
	rows, err := aspectRows(item)
	if err != nil {
		return err
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := MediaItem{ID: item.ID.String(), Title: title}

		upsertErr := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
		}).Create(&row).Error
		if upsertErr != nil {
			return fmt.Errorf("upsert media item: %w", upsertErr)
		}

		deleteErr := tx.Where("media_item_id = ?", row.ID).Delete(&Aspect{}).Error
		if deleteErr != nil {
			return fmt.Errorf("clear aspects: %w", deleteErr)
		}

		if len(rows) == 0 {
			return nil
		}

		createErr := tx.Create(&rows).Error
		if createErr != nil {
			return fmt.Errorf("insert aspects: %w", createErr)
		}

		return nil
	})
}

func aspectRows(item media.Item) ([]Aspect, error) {
	rows := make([]Aspect, 0, item.Aspects.AttributeCount())

	for typeID, records := range item.Aspects {
		for _, attrs := range records {
			data, err := json.Marshal(attrs)
			if err != nil {
				return nil, fmt.Errorf("encode aspect %s: %w", typeID, err)
			}

			rows = append(rows, Aspect{
				MediaItemID:  item.ID.String(),
				AspectTypeID: typeID.String(),
				Attributes:   string(data),
			})
		}
	}

	return rows, nil
}

// FetchAspects returns the aspects of the requested items in one query.
// Items that are unknown or have no aspects are absent from the result.
func (l *Library) FetchAspects(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]media.Aspects, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	var rows []Aspect

	err := l.db.WithContext(ctx).
		Where("media_item_id IN ?", keys).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query aspects: %w", err)
	}

	out := make(map[uuid.UUID]media.Aspects)

	for _, row := range rows {
		itemID, itemErr := uuid.Parse(row.MediaItemID)
		typeID, typeErr := uuid.Parse(row.AspectTypeID)

		if itemErr != nil || typeErr != nil {
			l.logger.WarnContext(ctx, "skipping malformed aspect row", slog.Uint64("row", uint64(row.ID)))

			continue
		}

		var attrs media.Attributes

		decodeErr := json.Unmarshal([]byte(row.Attributes), &attrs)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode aspect row %d: %w", row.ID, decodeErr)
		}

		if out[itemID] == nil {
			out[itemID] = make(media.Aspects)
		}

		out[itemID][typeID] = append(out[itemID][typeID], attrs)
	}

	return out, nil
}

// ParseMediaItem stores an analysis record for item, replacing any previous one.
func (l *Library) ParseMediaItem(ctx context.Context, item media.Item) error {
	if item.Aspects.Len() == 0 {
		return fmt.Errorf("%w: %s", ErrNoAspects, item.ID)
	}

	payload, err := json.Marshal(item.Aspects)
	if err != nil {
		return fmt.Errorf("encode analysis payload: %w", err)
	}

	row := Analysis{
		MediaItemID:    item.ID.String(),
		AspectCount:    item.Aspects.Len(),
		AttributeCount: item.Aspects.AttributeCount(),
		Payload:        string(payload),
		AnalyzedAt:     l.now(),
	}

	saveErr := l.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if saveErr != nil {
		return fmt.Errorf("store analysis %s: %w", item.ID, saveErr)
	}

	return nil
}

// DeleteAnalysis removes the analysis record of an item. A missing record is not an error.
func (l *Library) DeleteAnalysis(ctx context.Context, mediaItemID uuid.UUID) error {
	res := l.db.WithContext(ctx).Where("media_item_id = ?", mediaItemID.String()).Delete(&Analysis{})
	if res.Error != nil {
		return fmt.Errorf("delete analysis %s: %w", mediaItemID, res.Error)
	}

	if res.RowsAffected == 0 {
		l.logger.DebugContext(ctx, "no analysis to delete", slog.String("media_item_id", mediaItemID.String()))
	}

	return nil
}

// Analysis returns the stored analysis of an item.
func (l *Library) Analysis(ctx context.Context, mediaItemID uuid.UUID) (Analysis, error) {
	var row Analysis

	err := l.db.WithContext(ctx).Where("media_item_id = ?", mediaItemID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Analysis{}, fmt.Errorf("analysis %s: %w", mediaItemID, ErrNotFound)
	}

	if err != nil {
		return Analysis{}, fmt.Errorf("load analysis %s: %w", mediaItemID, err)
	}

	return row, nil
}

// AnalysisIDs lists the media items that have an analysis record.
func (l *Library) AnalysisIDs(ctx context.Context) ([]uuid.UUID, error) {
	var keys []string

	err := l.db.WithContext(ctx).Model(&Analysis{}).Order("media_item_id").Pluck("media_item_id", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(keys))

	for _, key := range keys {
		id, parseErr := uuid.Parse(key)
		if parseErr != nil {
			return nil, fmt.Errorf("analysis key %q: %w", key, parseErr)
		}

		ids = append(ids, id)
	}

	return ids, nil
}
