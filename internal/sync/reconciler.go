package sync

import (
	"fmt"
	"strconv"

	"github.com/matheus3301/driftchat/internal/kv"
	"github.com/matheus3301/driftchat/internal/logging"
	"go.uber.org/zap"
)

// CheckpointKey holds the newest remote message timestamp (unix ms) this
// client has ingested.
const CheckpointKey = "driftchat.sync.checkpoint"

// Reconciler manages feed checkpoints in local storage.
type Reconciler struct {
	storage kv.Storage
	logger  *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(storage kv.Storage, logger *zap.Logger) *Reconciler {
	return &Reconciler{storage: storage, logger: logging.OrNop(logger)}
}

// UpdateCheckpoint stores ts if it is newer than the current checkpoint.
func (r *Reconciler) UpdateCheckpoint(ts int64) error {
	cur, err := r.Checkpoint()
	if err != nil {
		return err
	}
	if ts <= cur {
		return nil
	}
	if err := r.storage.SetItem(CheckpointKey, strconv.FormatInt(ts, 10)); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Checkpoint returns the stored checkpoint, or 0 when none exists.
func (r *Reconciler) Checkpoint() (int64, error) {
	raw, ok, err := r.storage.GetItem(CheckpointKey)
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	if !ok {
		return 0, nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.logger.Warn("ignoring corrupt sync checkpoint", zap.String("value", raw))
		return 0, nil
	}
	return ts, nil
}
