// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kadirpekel/lector/pkg/config"
)

// Database implements Store on gorm. Postgres for deployments, sqlite for
// local runs.
type Database struct {
	db *gorm.DB
}

// Open connects per the database configuration and migrates the schema.
func Open(cfg config.DatabaseConfig) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "lector.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&QueryEngine{},
		&QueryDocument{},
		&QueryDocumentChunk{},
		&QueryReference{},
		&QueryResult{},
		&HistoryEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db}, nil
}

// NewDatabase wraps an existing gorm handle (used by tests).
func NewDatabase(db *gorm.DB) *Database { return &Database{db: db} }

// DB exposes the underlying handle for sibling packages that share the
// connection (the pgvector store).
func (d *Database) DB() *gorm.DB { return d.db }

func (d *Database) CreateEngine(ctx context.Context, engine *QueryEngine) error {
	if err := d.db.WithContext(ctx).Create(engine).Error; err != nil {
		return fmt.Errorf("failed to create engine %q: %w", engine.Name, err)
	}
	return nil
}

func (d *Database) EngineByID(ctx context.Context, id string) (*QueryEngine, error) {
	var engine QueryEngine
	err := d.db.WithContext(ctx).First(&engine, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("engine", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load engine %q: %w", id, err)
	}
	return &engine, nil
}

func (d *Database) EngineByName(ctx context.Context, name string) (*QueryEngine, error) {
	var engine QueryEngine
	err := d.db.WithContext(ctx).First(&engine, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("engine", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load engine %q: %w", name, err)
	}
	return &engine, nil
}

func (d *Database) EngineChildren(ctx context.Context, parentID string) ([]*QueryEngine, error) {
	var children []*QueryEngine
	err := d.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at").
		Find(&children).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load children of %q: %w", parentID, err)
	}
	return children, nil
}

func (d *Database) ListEngines(ctx context.Context) ([]*QueryEngine, error) {
	var engines []*QueryEngine
	if err := d.db.WithContext(ctx).Order("created_at").Find(&engines).Error; err != nil {
		return nil, fmt.Errorf("failed to list engines: %w", err)
	}
	return engines, nil
}

func (d *Database) UpdateEngine(ctx context.Context, engine *QueryEngine) error {
	if err := d.db.WithContext(ctx).Save(engine).Error; err != nil {
		return fmt.Errorf("failed to update engine %q: %w", engine.ID, err)
	}
	return nil
}

func (d *Database) DeleteEngine(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&QueryEngine{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete engine %q: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("engine", id)
		}
		if err := tx.Delete(&QueryDocument{}, "engine_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete documents of %q: %w", id, err)
		}
		if err := tx.Where("engine_id = ?", id).Delete(&QueryDocumentChunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete chunks of %q: %w", id, err)
		}
		return nil
	})
}

func (d *Database) CreateDocument(ctx context.Context, doc *QueryDocument) error {
	if err := d.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document %q: %w", doc.Name, err)
	}
	return nil
}

func (d *Database) DocumentByID(ctx context.Context, id string) (*QueryDocument, error) {
	var doc QueryDocument
	err := d.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %q: %w", id, err)
	}
	return &doc, nil
}

func (d *Database) CreateChunks(ctx context.Context, chunks []*QueryDocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := d.db.WithContext(ctx).CreateInBatches(chunks, 100).Error; err != nil {
		return fmt.Errorf("failed to create chunks: %w", err)
	}
	return nil
}

func (d *Database) ChunkByIndex(ctx context.Context, engineID string, index int) (*QueryDocumentChunk, error) {
	var chunk QueryDocumentChunk
	err := d.db.WithContext(ctx).
		First(&chunk, "engine_id = ? AND chunk_index = ?", engineID, index).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("chunk", engineID+"/"+strconv.Itoa(index))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk %d of %q: %w", index, engineID, err)
	}
	return &chunk, nil
}

func (d *Database) NextChunkOffset(ctx context.Context, engineID string) (int, error) {
	var max *int
	err := d.db.WithContext(ctx).
		Model(&QueryDocumentChunk{}).
		Select("MAX(chunk_index)").
		Where("engine_id = ?", engineID).
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute chunk offset for %q: %w", engineID, err)
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (d *Database) CreateReference(ctx context.Context, ref *QueryReference) error {
	if err := d.db.WithContext(ctx).Create(ref).Error; err != nil {
		return fmt.Errorf("failed to create reference: %w", err)
	}
	return nil
}

func (d *Database) ReferenceByID(ctx context.Context, id string) (*QueryReference, error) {
	var ref QueryReference
	err := d.db.WithContext(ctx).First(&ref, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("reference", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reference %q: %w", id, err)
	}
	return &ref, nil
}

func (d *Database) CreateResult(ctx context.Context, result *QueryResult) error {
	if err := d.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

func (d *Database) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	if err := d.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (d *Database) History(ctx context.Context, userID, agent string, limit int) ([]*HistoryEntry, error) {
	var entries []*HistoryEntry
	q := d.db.WithContext(ctx).Where("user_id = ?", userID)
	if agent != "" {
		q = q.Where("agent = ?", agent)
	}
	err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %q: %w", userID, err)
	}
	// Chronological order for prompt building.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

var _ Store = (*Database)(nil)
