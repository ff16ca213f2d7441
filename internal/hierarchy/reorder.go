package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
)

// SiblingUpdate moves one node to a new position.
type SiblingUpdate struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// ReorderResult reports a completed reorder. Modified counts nodes whose
// final position differs from the one they had before the call.
type ReorderResult struct {
	Success  bool `json:"success"`
	Modified int  `json:"modified"`
	Offset   int  `json:"offset"`
}

// Reorder rewrites sibling positions in two bulk writes so the unique
// (parent, position) index never sees a duplicate. Phase one moves every
// affected node into a band above all current and requested positions;
// phase two writes the requested positions. Both phases always run.
//
// If phase two fails the affected nodes keep their band positions until the
// reorder is repeated. Concurrent reorders of overlapping siblings are not
// isolated from each other.
func (s *Service) Reorder(ctx context.Context, kind Kind, updates []SiblingUpdate) (ReorderResult, error) {
	if !kind.Orderable() {
		return ReorderResult{}, invalidArg("%s cannot be reordered", kind)
	}
	if len(updates) == 0 {
		return ReorderResult{}, invalidArg("updates must not be empty")
	}

	ids := make([]string, 0, len(updates))
	seen := make(map[string]bool, len(updates))
	for _, u := range updates {
		if err := ValidateID(u.ID); err != nil {
			return ReorderResult{}, err
		}
		if u.Position < 1 || u.Position > MaxPosition {
			return ReorderResult{}, invalidArg("position for %s must be between 1 and %d, got %d", u.ID, MaxPosition, u.Position)
		}
		if seen[u.ID] {
			return ReorderResult{}, invalidArg("duplicate id %s", u.ID)
		}
		seen[u.ID] = true
		ids = append(ids, u.ID)
	}

	nodes, err := s.store.List(ctx, kind, Where(kind, ids...))
	if err != nil {
		return ReorderResult{}, fmt.Errorf("load %s siblings: %w", kind, err)
	}
	current := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		current[n.ID] = n
	}
	for _, id := range ids {
		if _, ok := current[id]; !ok {
			return ReorderResult{}, notFound(kind, id)
		}
	}

	taken := make(map[string]map[int]string)
	for _, u := range updates {
		parent := current[u.ID].ParentID()
		if taken[parent] == nil {
			taken[parent] = make(map[int]string)
		}
		if other, dup := taken[parent][u.Position]; dup {
			return ReorderResult{}, invalidArg("%s and %s both target position %d", other, u.ID, u.Position)
		}
		taken[parent][u.Position] = u.ID
	}

	offset, err := s.quarantineOffset(ctx, kind, updates, taken)
	if err != nil {
		return ReorderResult{}, err
	}
	if offset > MaxPosition-len(updates)+1 {
		return ReorderResult{}, invalidArg("no room for a %d-position band above %d", len(updates), offset-1)
	}

	quarantine := make([]PositionWrite, len(updates))
	final := make([]PositionWrite, len(updates))
	for i, u := range updates {
		quarantine[i] = PositionWrite{ID: u.ID, Position: offset + i}
		final[i] = PositionWrite{ID: u.ID, Position: u.Position}
	}

	if _, err := s.store.SetPositions(ctx, kind, quarantine); err != nil {
		return ReorderResult{}, fmt.Errorf("reorder %s quarantine phase: %w", kind, err)
	}
	if _, err := s.store.SetPositions(ctx, kind, final); err != nil {
		slog.Error("reorder commit phase failed, positions left in quarantine band",
			"kind", kind,
			"offset", offset,
			"count", len(updates),
			"error", err,
		)
		return ReorderResult{}, fmt.Errorf("reorder %s commit phase: %w", kind, err)
	}

	modified := 0
	for _, u := range updates {
		if current[u.ID].Position != u.Position {
			modified++
		}
	}

	slog.Info("siblings reordered", "kind", kind, "count", len(updates), "modified", modified, "offset", offset)
	logEvent(ctx, s.events, Event{Kind: kind, Action: ActionReorder, Data: map[string]any{
		"ids":      ids,
		"modified": modified,
		"offset":   offset,
	}})
	return ReorderResult{Success: true, Modified: modified, Offset: offset}, nil
}

// quarantineOffset returns the first position of a band that lies above every
// current sibling position and every requested position. A configured offset
// is used when it clears that bar.
func (s *Service) quarantineOffset(ctx context.Context, kind Kind, updates []SiblingUpdate, parents map[string]map[int]string) (int, error) {
	highest := 0
	for parent := range parents {
		n, err := s.store.MaxPosition(ctx, kind, parent)
		if err != nil {
			return 0, fmt.Errorf("max %s position under %s: %w", kind, parent, err)
		}
		highest = max(highest, n)
	}
	for _, u := range updates {
		highest = max(highest, u.Position)
	}

	if s.reorderBaseOffset > highest {
		return s.reorderBaseOffset, nil
	}
	if s.reorderBaseOffset > 0 {
		slog.Warn("configured reorder offset overlaps existing positions, deriving band",
			"kind", kind,
			"configured", s.reorderBaseOffset,
			"highest", highest,
		)
	}
	return highest + 1, nil
}
