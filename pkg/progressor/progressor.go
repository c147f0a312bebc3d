// Package progressor runs data upgrades when the stored schema version
// differs from the running binary's.
package progressor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealerchat/pkg/logger"
	"dealerchat/pkg/store"
)

// SchemaVersion is bumped whenever stored data needs an upgrade pass.
const SchemaVersion = "2"

const (
	systemVersionKey    = "system:schema_version"
	systemInProgressKey = "system:migration_in_progress"
)

// Store is the subset of the store the upgrade needs.
type Store interface {
	GetKey(key string) ([]byte, error)
	SaveKey(key string, value []byte) error
	DeleteKey(key string) error
	RebuildIndexes() (store.IndexRepair, error)
}

// Sync performs the upgrade work between versions. Every step must be
// idempotent since an interrupted run is retried on next start.
func Sync(ctx context.Context, db Store, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rep, err := db.RebuildIndexes()
	if err != nil {
		return fmt.Errorf("rebuild indexes: %w", err)
	}
	logger.Info("progressor_indexes_checked", "from", from, "to", to, "pairings", rep.Pairings, "message_ids", rep.MessageIDs)
	return nil
}

// Run checks the stored version and runs Sync if it differs from version.
// It reports whether Sync ran.
func Run(ctx context.Context, db Store, version string) (bool, error) {
	stored, err := db.GetKey(systemVersionKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("read schema version: %w", err)
	}
	_, inProgErr := db.GetKey(systemInProgressKey)
	interrupted := inProgErr == nil
	if string(stored) == version && !interrupted {
		logger.Debug("progressor_noop", "version", version)
		return false, nil
	}

	marker, _ := json.Marshal(map[string]string{
		"from":       string(stored),
		"to":         version,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err := db.SaveKey(systemInProgressKey, marker); err != nil {
		return true, fmt.Errorf("write in-progress marker: %w", err)
	}

	logger.Info("progressor_start_sync", "from", string(stored), "to", version, "resumed", interrupted)
	if err := Sync(ctx, db, string(stored), version); err != nil {
		logger.Error("progressor_sync_failed", "from", string(stored), "to", version, "error", err)
		return true, err
	}
	if err := db.SaveKey(systemVersionKey, []byte(version)); err != nil {
		return true, fmt.Errorf("persist schema version: %w", err)
	}
	if err := db.DeleteKey(systemInProgressKey); err != nil {
		logger.Error("progressor_delete_inprogress_failed", "error", err)
	}
	logger.Info("progressor_version_persisted", "version", version)
	return true, nil
}
