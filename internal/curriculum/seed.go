package curriculum

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
)

// SeedResult counts what a seed run did.
type SeedResult struct {
	Exams   int
	Nodes   int
	Skipped int
}

// Seed creates every loaded exam that does not exist yet. Children are
// created in file order with positions 1..N.
func Seed(ctx context.Context, svc *hierarchy.Service, l *Loader) (SeedResult, error) {
	var res SeedResult

	existing, err := svc.List(ctx, hierarchy.KindExam, "")
	if err != nil {
		return res, fmt.Errorf("list exams: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, e := range existing {
		have[e.Name] = true
	}

	for _, exam := range l.AllExams() {
		if have[hierarchy.NormalizeName(exam.Name)] {
			res.Skipped++
			continue
		}
		n, err := createEntry(ctx, svc, hierarchy.KindExam, nil, 0, exam)
		if err != nil {
			rollback(ctx, svc, exam.Name, n.root)
			return res, fmt.Errorf("seed exam %q: %w", exam.Name, err)
		}
		if exam.Description != "" || exam.DurationMinutes > 0 || exam.TotalMarks > 0 {
			if err := svc.PutExamDetail(ctx, hierarchy.ExamDetail{
				ExamID:          n.root,
				Description:     exam.Description,
				DurationMinutes: exam.DurationMinutes,
				TotalMarks:      exam.TotalMarks,
			}); err != nil {
				rollback(ctx, svc, exam.Name, n.root)
				return res, fmt.Errorf("seed exam %q details: %w", exam.Name, err)
			}
		}
		res.Exams++
		res.Nodes += n.count
	}

	slog.Info("curriculum seeded", "exams", res.Exams, "nodes", res.Nodes, "skipped", res.Skipped)
	return res, nil
}

// rollback removes a partially seeded exam so the next run retries it.
func rollback(ctx context.Context, svc *hierarchy.Service, name, examID string) {
	if examID == "" {
		return
	}
	res, err := svc.DeleteNode(ctx, hierarchy.KindExam, examID)
	if err != nil || len(res.Failed) > 0 {
		slog.Error("seed rollback incomplete",
			"exam", name,
			"exam_id", examID,
			"failed_levels", res.Failed,
			"error", err,
		)
		return
	}
	slog.Warn("seed rolled back", "exam", name, "exam_id", examID, "cascade", res.Cascade)
}

type created struct {
	root  string
	count int
}

func createEntry(ctx context.Context, svc *hierarchy.Service, kind hierarchy.Kind, path hierarchy.Path, position int, e Entry) (created, error) {
	n, err := svc.Create(ctx, hierarchy.CreateInput{
		Kind:     kind,
		Name:     e.Name,
		Path:     path,
		Position: position,
		Status:   hierarchy.Status(e.Status),
	})
	if err != nil {
		return created{}, err
	}

	out := created{root: n.ID, count: 1}
	if len(e.Children) == 0 {
		return out, nil
	}
	child := kind.Child()
	if child == hierarchy.KindInvalid {
		return out, fmt.Errorf("%s %q cannot have children", kind, e.Name)
	}
	childPath := path.Child(n.ID)
	for i, c := range e.Children {
		sub, err := createEntry(ctx, svc, child, childPath, i+1, c)
		if err != nil {
			return out, err
		}
		out.count += sub.count
	}
	return out, nil
}
