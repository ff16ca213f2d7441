package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrorPolicy decides what a cascade does when one level fails.
type ErrorPolicy string

const (
	// PolicyContinue logs the failing level and carries on.
	PolicyContinue ErrorPolicy = "continue"
	// PolicyAbort stops at the first failing level.
	PolicyAbort ErrorPolicy = "abort"
)

// ParseErrorPolicy accepts "continue" or "abort".
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyContinue, PolicyAbort:
		return p, nil
	}
	return "", fmt.Errorf("unknown error policy %q", s)
}

// ServiceConfig holds dependencies and tuning for the hierarchy service.
type ServiceConfig struct {
	Store  Store
	Events EventLogger
	// ReorderBaseOffset is the start of the quarantine band; 0 derives it
	// from the current sibling positions on every call.
	ReorderBaseOffset int
	// CascadeSubjectDelete makes deleting a subject remove its units and
	// everything below them. Off by default: only the exam cascade reaches them.
	CascadeSubjectDelete bool
	DeleteErrorPolicy    ErrorPolicy // default continue
	StatusErrorPolicy    ErrorPolicy // default abort
}

// Service is the entry point for every tree mutation.
type Service struct {
	store                Store
	events               EventLogger
	validate             *validator.Validate
	reorderBaseOffset    int
	cascadeSubjectDelete bool
	deletePolicy         ErrorPolicy
	statusPolicy         ErrorPolicy
}

// NewService creates a hierarchy service.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	deletePolicy := cfg.DeleteErrorPolicy
	if deletePolicy == "" {
		deletePolicy = PolicyContinue
	}
	statusPolicy := cfg.StatusErrorPolicy
	if statusPolicy == "" {
		statusPolicy = PolicyAbort
	}
	return &Service{
		store:                store,
		events:               events,
		validate:             validator.New(validator.WithRequiredStructEnabled()),
		reorderBaseOffset:    cfg.ReorderBaseOffset,
		cascadeSubjectDelete: cfg.CascadeSubjectDelete,
		deletePolicy:         deletePolicy,
		statusPolicy:         statusPolicy,
	}
}

// Store exposes the underlying store for read paths such as export.
func (s *Service) Store() Store {
	return s.store
}

// NormalizeName trims, collapses inner whitespace and title-cases a name.
func NormalizeName(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	return cases.Title(language.English).String(collapsed)
}

// CreateInput describes a new node. Path carries every ancestor id, root first.
type CreateInput struct {
	Kind     Kind   `validate:"required"`
	Name     string `validate:"required,max=200"`
	Path     Path
	Position int    `validate:"gte=0,lte=2147483647"`
	Status   Status `validate:"omitempty,oneof=active inactive draft"`
}

// UpdateInput carries a partial patch of name and position.
type UpdateInput struct {
	Name     *string `validate:"omitempty,min=1,max=200"`
	Position *int    `validate:"omitempty,gte=1,lte=2147483647"`
}

// Create validates the ancestor chain and inserts a node. A zero position
// appends after the last sibling.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Node, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, invalidArg("%v", err)
	}
	if !in.Kind.Valid() {
		return nil, invalidArg("invalid kind")
	}
	if err := in.Path.Validate(in.Kind); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	if !in.Kind.AllowsStatus(status) {
		return nil, invalidArg("status %q not allowed for %s", status, in.Kind)
	}
	name := NormalizeName(in.Name)
	if name == "" {
		return nil, invalidArg("name is required")
	}

	if err := s.checkAncestors(ctx, in.Kind, in.Path); err != nil {
		return nil, err
	}

	position := in.Position
	if position == 0 {
		highest, err := s.store.MaxPosition(ctx, in.Kind, in.Path.Parent())
		if err != nil {
			return nil, fmt.Errorf("next position for %s: %w", in.Kind, err)
		}
		if highest >= MaxPosition {
			return nil, invalidArg("no position left after %d", highest)
		}
		position = highest + 1
	}

	n := &Node{
		ID:       NewID(),
		Kind:     in.Kind,
		Name:     name,
		Position: position,
		Status:   status,
		Path:     append(Path(nil), in.Path...),
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("create %s: %w", in.Kind, err)
	}

	slog.Info("node created", "kind", n.Kind, "id", n.ID, "parent_id", n.ParentID(), "position", n.Position)
	logEvent(ctx, s.events, Event{Kind: n.Kind, NodeID: n.ID, Action: ActionCreate, Data: map[string]any{
		"name":     n.Name,
		"position": n.Position,
	}})
	return n, nil
}

// checkAncestors fetches every ancestor concurrently and verifies each one
// sits on the same path the caller supplied.
func (s *Service) checkAncestors(ctx context.Context, kind Kind, path Path) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range kind.Ancestors() {
		g.Go(func() error {
			anc, err := s.store.Get(gctx, k, path[i])
			if err != nil {
				return fmt.Errorf("%s: %w", k.IDField(), err)
			}
			if len(anc.Path) != i || !path.HasPrefix(anc.Path) {
				return invalidArg("%s %s does not belong to the supplied ancestors", k, path[i])
			}
			return nil
		})
	}
	return g.Wait()
}

// Get returns a single node.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (*Node, error) {
	if !kind.Valid() {
		return nil, invalidArg("invalid kind")
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, kind, id)
}

// List returns the children of parentID ordered by position. An empty
// parentID lists every node of the kind.
func (s *Service) List(ctx context.Context, kind Kind, parentID string) ([]Node, error) {
	if !kind.Valid() {
		return nil, invalidArg("invalid kind")
	}
	if parentID == "" || kind == KindExam {
		return s.store.List(ctx, kind, All())
	}
	if err := ValidateID(parentID); err != nil {
		return nil, err
	}
	return s.store.List(ctx, kind, Where(kind.Parent(), parentID))
}

// Update applies a partial name/position patch. Position changes are written
// directly and may collide with a sibling; use Reorder to move several.
func (s *Service) Update(ctx context.Context, kind Kind, id string, in UpdateInput) (*Node, error) {
	if !kind.Valid() {
		return nil, invalidArg("invalid kind")
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, invalidArg("%v", err)
	}
	var patch Patch
	if in.Name != nil {
		name := NormalizeName(*in.Name)
		if name == "" {
			return nil, invalidArg("name is required")
		}
		patch.Name = &name
	}
	patch.Position = in.Position

	n, err := s.store.Update(ctx, kind, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, err)
	}
	logEvent(ctx, s.events, Event{Kind: kind, NodeID: id, Action: ActionUpdate, Data: map[string]any{
		"name":     n.Name,
		"position": n.Position,
	}})
	return n, nil
}

// ExamDetail returns the detail document of an exam.
func (s *Service) ExamDetail(ctx context.Context, examID string) (*ExamDetail, error) {
	if err := ValidateID(examID); err != nil {
		return nil, err
	}
	return s.store.GetExamDetail(ctx, examID)
}

// PutExamDetail stores the detail document of an existing exam.
func (s *Service) PutExamDetail(ctx context.Context, d ExamDetail) error {
	if err := ValidateID(d.ExamID); err != nil {
		return err
	}
	if d.DurationMinutes < 0 || d.TotalMarks < 0 {
		return invalidArg("duration and total marks must be non-negative")
	}
	if _, err := s.store.Get(ctx, KindExam, d.ExamID); err != nil {
		return err
	}
	if err := s.store.PutExamDetail(ctx, d); err != nil {
		return fmt.Errorf("put exam detail: %w", err)
	}
	return nil
}
