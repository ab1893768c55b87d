package pipeline

import (
	"context"
	"fmt"

	"github.com/robotlogs/mdflog/internal/storage"
)

type reconcilerState uint8

const (
	stateNotStarted reconcilerState = iota
	stateInProgress
	stateRepairPass
	stateDone
)

// reconciler keeps log groups consistent with the source file's channel
// groups during one ingestion run. Groups are created lazily the first
// time a channel of that group produces records, and a final repair pass
// fixes any log whose group assignment drifted from its group index.
type reconciler struct {
	store    storage.Store
	fileID   int64
	fileName string

	state  reconcilerState
	groups map[int]int64
	fixed  int64

	created int
}

func newReconciler(ctx context.Context, store storage.Store, fileID int64, fileName string) (*reconciler, error) {
	r := &reconciler{
		store:    store,
		fileID:   fileID,
		fileName: fileName,
		groups:   make(map[int]int64),
	}

	// Adopt groups that already exist for this file so a re-run does not
	// collide with the unique (file, index) constraint.
	existing, err := store.Groups(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("loading existing groups: %w", err)
	}
	for _, g := range existing {
		if g.ChannelGroupIndex != nil {
			r.groups[*g.ChannelGroupIndex] = g.ID
		}
	}
	return r, nil
}

// groupFor returns the group ID for a channel group index, creating the
// group on first use. The group name follows the source file name.
func (r *reconciler) groupFor(ctx context.Context, index int) (int64, error) {
	r.state = stateInProgress

	if id, ok := r.groups[index]; ok {
		return id, nil
	}

	name := fmt.Sprintf("%s - Channel Group %d", r.fileName, index)
	id, err := r.store.CreateGroup(ctx, r.fileID, name, &index)
	if err != nil {
		return 0, fmt.Errorf("creating group %d: %w", index, err)
	}
	r.groups[index] = id
	r.created++
	return id, nil
}

// repair runs the final consistency pass: reassign logs whose stored
// group index points at a different group, then recompute group
// statistics. It is idempotent; a second run fixes nothing.
func (r *reconciler) repair(ctx context.Context) error {
	r.state = stateRepairPass

	fixed, err := r.store.ReassignMismatchedLogs(ctx, r.fileID)
	if err != nil {
		return fmt.Errorf("reassigning logs: %w", err)
	}
	r.fixed = fixed

	if err := r.store.RefreshGroupStats(ctx, r.fileID); err != nil {
		return fmt.Errorf("refreshing group stats: %w", err)
	}

	r.state = stateDone
	return nil
}
