// Package client implements the connected peer: the keepalive/reconnect
// session state machine, the offline conversation flow, and the local
// read replica that keeps simple queries working while the realtime
// channel is down.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/souschef/recipe-assistant/internal/domain"
)

// LocalRecipe is one recipe document mirrored into the replica. Only
// recipe-typed documents are pulled down (the server-side replica filter
// scopes the changes feed), so this is the whole local schema.
type LocalRecipe struct {
	ID           string `gorm:"type:varchar(128);primaryKey"`
	Rev          string `gorm:"type:varchar(128)"`
	Name         string `gorm:"type:varchar(255);index"`
	Title        string `gorm:"type:varchar(255);not null"`
	Instructions string `gorm:"type:text"`
	UpdatedAt    time.Time
}

// TableName returns the replica table name for LocalRecipe.
func (LocalRecipe) TableName() string { return "recipes" }

// replicaState holds the single-row sync checkpoint: the changes-feed
// sequence token to resume the next pull from.
type replicaState struct {
	ID  int    `gorm:"primaryKey"`
	Seq string `gorm:"type:text"`
}

func (replicaState) TableName() string { return "replica_state" }

// Replica is the client-held read copy of the recipe subset of the store.
// It is read-only from the conversation's point of view; only the sync
// pull writes to it.
type Replica struct {
	db *gorm.DB
}

// OpenReplica opens (or creates) the replica database and migrates its
// schema.
func OpenReplica(path string) (*Replica, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if err := db.AutoMigrate(&LocalRecipe{}, &replicaState{}); err != nil {
		return nil, err
	}
	return &Replica{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Replica) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Count returns the number of recipes held locally.
func (r *Replica) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&LocalRecipe{}).Count(&n).Error
	return n, err
}

// List returns all local recipes ordered by title.
func (r *Replica) List(ctx context.Context) ([]LocalRecipe, error) {
	var out []LocalRecipe
	err := r.db.WithContext(ctx).Order("title asc").Find(&out).Error
	return out, err
}

// upsert writes one mirrored recipe, replacing any previous revision.
func (r *Replica) upsert(ctx context.Context, rec LocalRecipe) error {
	rec.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// checkpoint returns the stored changes-feed sequence token, or "" before
// the first completed pull.
func (r *Replica) checkpoint(ctx context.Context) (string, error) {
	var st replicaState
	err := r.db.WithContext(ctx).First(&st, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return st.Seq, err
}

// saveCheckpoint persists the sequence token to resume the next pull from.
func (r *Replica) saveCheckpoint(ctx context.Context, seq string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&replicaState{ID: 1, Seq: seq}).Error
}

// Puller reads recipe documents from the store's filtered changes feed.
// *couch.Client satisfies it.
type Puller interface {
	PullChanges(ctx context.Context, filter, since string, fn func(id string, doc json.RawMessage) error) (lastSeq string, err error)
}

// Sync performs one incremental pull through the named server-side filter
// and advances the checkpoint. Failures leave the previous checkpoint in
// place so the next pull retries the same window.
func (r *Replica) Sync(ctx context.Context, p Puller, filter string) error {
	since, err := r.checkpoint(ctx)
	if err != nil {
		return err
	}
	lastSeq, err := p.PullChanges(ctx, filter, since, func(id string, doc json.RawMessage) error {
		var rec domain.Recipe
		if err := json.Unmarshal(doc, &rec); err != nil {
			return err
		}
		return r.upsert(ctx, LocalRecipe{
			ID:           id,
			Rev:          rec.Rev,
			Name:         rec.Name,
			Title:        rec.Title,
			Instructions: rec.Instructions,
		})
	})
	if err != nil {
		return err
	}
	if lastSeq == since {
		return nil
	}
	return r.saveCheckpoint(ctx, lastSeq)
}
