package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
)

// LevelExamDetails is the cascade report key for the exam_details collection.
const LevelExamDetails = "exam_details"

// DeleteResult reports a delete and the rows removed at each descendant level.
type DeleteResult struct {
	Kind           Kind             `json:"kind"`
	ID             string           `json:"id"`
	DeletedPrimary bool             `json:"deleted_primary"`
	Cascade        map[string]int64 `json:"cascade"`
	Failed         []string         `json:"failed,omitempty"`
}

// StatusResult reports a status change and the rows changed at each descendant level.
type StatusResult struct {
	Kind           Kind             `json:"kind"`
	ID             string           `json:"id"`
	Status         Status           `json:"status"`
	UpdatedPrimary bool             `json:"updated_primary"`
	PrimaryChanged bool             `json:"primary_changed"`
	Cascade        map[string]int64 `json:"cascade"`
	Failed         []string         `json:"failed,omitempty"`
}

type deleteStrategy int

const (
	cascadeNone deleteStrategy = iota
	// cascadeByAncestor deletes each level by the denormalized ancestor column.
	cascadeByAncestor
	// cascadeByHop collects ids level by level through the parent column.
	cascadeByHop
)

func (s *Service) deleteStrategy(kind Kind) deleteStrategy {
	switch kind {
	case KindExam:
		return cascadeByAncestor
	case KindSubject:
		if s.cascadeSubjectDelete {
			return cascadeByHop
		}
		return cascadeNone
	case KindUnit, KindChapter, KindTopic, KindSubTopic:
		return cascadeByHop
	default:
		return cascadeNone
	}
}

// DeleteNode removes a node after cascading the delete to its descendants.
// A failing descendant level is logged and recorded in the result; under
// PolicyContinue the remaining levels and the node itself are still deleted,
// which can leave orphaned rows behind.
func (s *Service) DeleteNode(ctx context.Context, kind Kind, id string) (DeleteResult, error) {
	if !kind.Valid() {
		return DeleteResult{}, invalidArg("invalid kind")
	}
	if err := ValidateID(id); err != nil {
		return DeleteResult{}, err
	}
	if _, err := s.store.Get(ctx, kind, id); err != nil {
		return DeleteResult{}, err
	}

	res := DeleteResult{Kind: kind, ID: id, Cascade: map[string]int64{}}
	strategy := s.deleteStrategy(kind)
	if strategy != cascadeNone {
		if kind == KindExam {
			res.Cascade[LevelExamDetails] = 0
		}
		for _, d := range kind.Descendants() {
			res.Cascade[d.Collection()] = 0
		}
	}

	var err error
	switch strategy {
	case cascadeByAncestor:
		err = s.cascadeDeleteByAncestor(ctx, kind, id, &res)
	case cascadeByHop:
		err = s.cascadeDeleteByHop(ctx, kind, id, &res)
	}
	if err != nil {
		return res, fmt.Errorf("cascade delete %s %s: %w", kind, id, err)
	}

	deleted, err := s.store.Delete(ctx, kind, id)
	if err != nil {
		return res, fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	res.DeletedPrimary = deleted

	slog.Info("node deleted",
		"kind", kind,
		"id", id,
		"cascade", res.Cascade,
		"failed_levels", len(res.Failed),
	)
	logEvent(ctx, s.events, Event{Kind: kind, NodeID: id, Action: ActionDelete, Data: map[string]any{
		"cascade": res.Cascade,
		"failed":  res.Failed,
	}})
	return res, nil
}

func (s *Service) cascadeDeleteByAncestor(ctx context.Context, kind Kind, id string, res *DeleteResult) error {
	if kind == KindExam {
		n, err := s.store.DeleteExamDetails(ctx, id)
		if err != nil {
			if abort := s.deleteLevelFailed(kind, id, LevelExamDetails, err, res); abort {
				return err
			}
		} else {
			res.Cascade[LevelExamDetails] = n
		}
	}

	desc := kind.Descendants()
	for i := len(desc) - 1; i >= 0; i-- {
		d := desc[i]
		n, err := s.store.DeleteMany(ctx, d, Where(kind, id))
		if err != nil {
			if abort := s.deleteLevelFailed(kind, id, d.Collection(), err, res); abort {
				return err
			}
			continue
		}
		res.Cascade[d.Collection()] = n
	}
	return nil
}

func (s *Service) cascadeDeleteByHop(ctx context.Context, kind Kind, id string, res *DeleteResult) error {
	desc := kind.Descendants()

	// parentIDs[i] is the id set whose children at level desc[i] get deleted.
	parentIDs := make([][]string, 0, len(desc))
	parents := []string{id}
	for i, d := range desc {
		if len(parents) == 0 {
			break
		}
		parentIDs = append(parentIDs, parents)
		if d.Child() == KindInvalid {
			break
		}
		ids, err := s.store.FindIDs(ctx, d, Where(d.Parent(), parents...))
		if err != nil {
			// Without the ids at d nothing below it can be reached; d itself still is.
			abort := false
			for _, below := range desc[i+1:] {
				abort = s.deleteLevelFailed(kind, id, below.Collection(), err, res)
			}
			if abort {
				return err
			}
			break
		}
		parents = ids
	}

	for i := len(parentIDs) - 1; i >= 0; i-- {
		d := desc[i]
		n, err := s.store.DeleteMany(ctx, d, Where(d.Parent(), parentIDs[i]...))
		if err != nil {
			if abort := s.deleteLevelFailed(kind, id, d.Collection(), err, res); abort {
				return err
			}
			continue
		}
		res.Cascade[d.Collection()] = n
	}
	return nil
}

func (s *Service) deleteLevelFailed(kind Kind, id, level string, err error, res *DeleteResult) bool {
	slog.Error("cascade delete step failed",
		"kind", kind,
		"id", id,
		"level", level,
		"policy", s.deletePolicy,
		"error", err,
	)
	res.Failed = append(res.Failed, level)
	return s.deletePolicy == PolicyAbort
}

// SetStatus updates a node's status and propagates it to descendants. An exam
// propagates every status change; other kinds propagate deactivation only.
// Draft never propagates.
func (s *Service) SetStatus(ctx context.Context, kind Kind, id string, status Status) (StatusResult, error) {
	if !kind.Valid() {
		return StatusResult{}, invalidArg("invalid kind")
	}
	if err := ValidateID(id); err != nil {
		return StatusResult{}, err
	}
	if !kind.AllowsStatus(status) {
		return StatusResult{}, invalidArg("status %q not allowed for %s", status, kind)
	}
	if _, err := s.store.Get(ctx, kind, id); err != nil {
		return StatusResult{}, err
	}

	res := StatusResult{Kind: kind, ID: id, Status: status, Cascade: map[string]int64{}}
	cascade := status != StatusDraft && (kind == KindExam || status == StatusInactive)
	if cascade {
		for _, d := range kind.Descendants() {
			res.Cascade[d.Collection()] = 0
		}
	}

	n, err := s.store.SetStatus(ctx, kind, Where(kind, id), status)
	if err != nil {
		return res, fmt.Errorf("set %s %s status: %w", kind, id, err)
	}
	res.UpdatedPrimary = true
	res.PrimaryChanged = n > 0

	if cascade {
		desc := kind.Descendants()
		for i := len(desc) - 1; i >= 0; i-- {
			d := desc[i]
			n, err := s.store.SetStatus(ctx, d, Where(kind, id), status)
			if err != nil {
				slog.Error("cascade status step failed",
					"kind", kind,
					"id", id,
					"level", d.Collection(),
					"policy", s.statusPolicy,
					"error", err,
				)
				res.Failed = append(res.Failed, d.Collection())
				if s.statusPolicy == PolicyAbort {
					return res, fmt.Errorf("cascade status %s %s at %s: %w", kind, id, d.Collection(), err)
				}
				continue
			}
			res.Cascade[d.Collection()] = n
		}
	}

	slog.Info("node status set",
		"kind", kind,
		"id", id,
		"status", status,
		"cascade", res.Cascade,
	)
	logEvent(ctx, s.events, Event{Kind: kind, NodeID: id, Action: ActionStatus, Data: map[string]any{
		"status":  string(status),
		"cascade": res.Cascade,
	}})
	return res, nil
}
