package hierarchy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Node is a single document in one of the tree collections.
type Node struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	Status    Status    `json:"status"`
	Path      Path      `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParentID returns the immediate parent id, or "" for an exam.
func (n Node) ParentID() string {
	return n.Path.Parent()
}

// MaxPosition is the largest position a store column can hold.
const MaxPosition = math.MaxInt32

// ExamDetail is the auxiliary one-per-exam document.
type ExamDetail struct {
	ExamID          string    `json:"exam_id"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalMarks      int       `json:"total_marks"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Filter selects nodes of one kind. Field names the column matched against IDs:
// an ancestor level matches that ancestor's id column, the queried kind itself
// matches the node id. The zero Filter matches every node.
type Filter struct {
	Field Kind
	IDs   []string
}

// Where matches nodes whose field column is one of ids.
func Where(field Kind, ids ...string) Filter {
	return Filter{Field: field, IDs: ids}
}

// All matches every node.
func All() Filter {
	return Filter{}
}

func (f Filter) matchesAll() bool {
	return f.Field == KindInvalid
}

// column resolves the filter column for a query against kind.
func (f Filter) column(kind Kind) string {
	if f.Field == kind {
		return "id"
	}
	return f.Field.IDField()
}

func (f Filter) validFor(kind Kind) error {
	if f.matchesAll() || f.Field == kind {
		return nil
	}
	if f.Field < KindExam || f.Field >= kind {
		return fmt.Errorf("%s filter cannot be applied to %s", f.Field, kind)
	}
	return nil
}

func (f Filter) match(n *Node) bool {
	if f.matchesAll() {
		return true
	}
	var v string
	if f.Field == n.Kind {
		v = n.ID
	} else {
		v = n.Path.ID(f.Field)
	}
	for _, id := range f.IDs {
		if id == v {
			return true
		}
	}
	return false
}

// Patch carries optional field updates; nil fields are left untouched.
type Patch struct {
	Name     *string
	Position *int
	Status   *Status
}

// PositionWrite sets one node's position as part of a bulk write.
type PositionWrite struct {
	ID       string
	Position int
}

// Store persists tree nodes. Implementations enforce a unique
// (parent, position) and (parent, name) index on every orderable kind and map
// violations to ErrConflict.
type Store interface {
	Insert(ctx context.Context, n *Node) error
	Get(ctx context.Context, kind Kind, id string) (*Node, error)
	// List returns matching nodes ordered by position.
	List(ctx context.Context, kind Kind, f Filter) ([]Node, error)
	Update(ctx context.Context, kind Kind, id string, p Patch) (*Node, error)
	Delete(ctx context.Context, kind Kind, id string) (bool, error)

	FindIDs(ctx context.Context, kind Kind, f Filter) ([]string, error)
	DeleteMany(ctx context.Context, kind Kind, f Filter) (int64, error)
	// SetStatus updates every matching node and returns how many changed.
	SetStatus(ctx context.Context, kind Kind, f Filter, status Status) (int64, error)
	// SetPositions applies all writes in one request, in order, and returns how
	// many nodes changed position.
	SetPositions(ctx context.Context, kind Kind, writes []PositionWrite) (int64, error)
	// MaxPosition returns the highest position under parentID, 0 when empty.
	MaxPosition(ctx context.Context, kind Kind, parentID string) (int, error)

	GetExamDetail(ctx context.Context, examID string) (*ExamDetail, error)
	PutExamDetail(ctx context.Context, d ExamDetail) error
	DeleteExamDetails(ctx context.Context, examID string) (int64, error)

	HealthCheck(ctx context.Context) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	nodes   map[Kind]map[string]*Node
	details map[string]ExamDetail
	mu      sync.RWMutex

	// AfterSetPositions, when set, runs after every bulk position write has
	// been applied and the lock released.
	AfterSetPositions func(kind Kind, writes []PositionWrite)
}

// NewMemoryStore creates a new in-memory node store.
func NewMemoryStore() *MemoryStore {
	nodes := make(map[Kind]map[string]*Node, len(Chain))
	for _, k := range Chain {
		nodes[k] = make(map[string]*Node)
	}
	return &MemoryStore{
		nodes:   nodes,
		details: make(map[string]ExamDetail),
	}
}

func (s *MemoryStore) Insert(_ context.Context, n *Node) error {
	if !n.Kind.Valid() {
		return invalidArg("invalid kind")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = NewID()
	}
	if _, ok := s.nodes[n.Kind][n.ID]; ok {
		return fmt.Errorf("%w: %s %s already exists", ErrConflict, n.Kind, n.ID)
	}
	if err := s.checkUnique(n.Kind, n.ID, n.ParentID(), n.Name, n.Position); err != nil {
		return err
	}
	now := time.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	s.nodes[n.Kind][n.ID] = cloneNode(n)
	return nil
}

// cloneNode copies n including its path so callers never share the stored slice.
func cloneNode(n *Node) *Node {
	out := *n
	out.Path = append(Path(nil), n.Path...)
	return &out
}

func (s *MemoryStore) Get(_ context.Context, kind Kind, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[kind][id]
	if !ok {
		return nil, notFound(kind, id)
	}
	return cloneNode(n), nil
}

func (s *MemoryStore) List(_ context.Context, kind Kind, f Filter) ([]Node, error) {
	if err := f.validFor(kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Node{}
	for _, n := range s.nodes[kind] {
		if f.match(n) {
			out = append(out, *cloneNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, kind Kind, id string, p Patch) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[kind][id]
	if !ok {
		return nil, notFound(kind, id)
	}
	name, position := n.Name, n.Position
	if p.Name != nil {
		name = *p.Name
	}
	if p.Position != nil {
		position = *p.Position
	}
	if err := s.checkUnique(kind, id, n.ParentID(), name, position); err != nil {
		return nil, err
	}
	n.Name, n.Position = name, position
	if p.Status != nil {
		n.Status = *p.Status
	}
	n.UpdatedAt = time.Now()
	return cloneNode(n), nil
}

func (s *MemoryStore) Delete(_ context.Context, kind Kind, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[kind][id]; !ok {
		return false, nil
	}
	delete(s.nodes[kind], id)
	return true, nil
}

func (s *MemoryStore) FindIDs(_ context.Context, kind Kind, f Filter) ([]string, error) {
	if err := f.validFor(kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for id, n := range s.nodes[kind] {
		if f.match(n) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) DeleteMany(_ context.Context, kind Kind, f Filter) (int64, error) {
	if err := f.validFor(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.nodes[kind] {
		if f.match(n) {
			delete(s.nodes[kind], id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, kind Kind, f Filter, status Status) (int64, error) {
	if err := f.validFor(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var modified int64
	now := time.Now()
	for _, n := range s.nodes[kind] {
		if f.match(n) && n.Status != status {
			n.Status = status
			n.UpdatedAt = now
			modified++
		}
	}
	return modified, nil
}

func (s *MemoryStore) SetPositions(_ context.Context, kind Kind, writes []PositionWrite) (int64, error) {
	modified, err := s.setPositions(kind, writes)
	if err == nil && s.AfterSetPositions != nil {
		s.AfterSetPositions(kind, writes)
	}
	return modified, err
}

// setPositions applies writes one at a time, checking the unique index after
// each, and stops at the first violation like an ordered bulk write.
func (s *MemoryStore) setPositions(kind Kind, writes []PositionWrite) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var modified int64
	now := time.Now()
	for _, w := range writes {
		n, ok := s.nodes[kind][w.ID]
		if !ok {
			continue
		}
		if n.Position == w.Position {
			continue
		}
		if err := s.checkUnique(kind, n.ID, n.ParentID(), n.Name, w.Position); err != nil {
			return modified, err
		}
		n.Position = w.Position
		n.UpdatedAt = now
		modified++
	}
	return modified, nil
}

func (s *MemoryStore) MaxPosition(_ context.Context, kind Kind, parentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for _, n := range s.nodes[kind] {
		if n.ParentID() == parentID && n.Position > highest {
			highest = n.Position
		}
	}
	return highest, nil
}

func (s *MemoryStore) GetExamDetail(_ context.Context, examID string) (*ExamDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.details[examID]
	if !ok {
		return nil, fmt.Errorf("%w: exam detail %s", ErrNotFound, examID)
	}
	return &d, nil
}

func (s *MemoryStore) PutExamDetail(_ context.Context, d ExamDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.UpdatedAt = time.Now()
	s.details[d.ExamID] = d
	return nil
}

func (s *MemoryStore) DeleteExamDetails(_ context.Context, examID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.details[examID]; !ok {
		return 0, nil
	}
	delete(s.details, examID)
	return 1, nil
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// checkUnique enforces the (parent, position) and (parent, name) indexes.
// Exams only have a unique name. Caller must hold the write lock.
func (s *MemoryStore) checkUnique(kind Kind, id, parentID, name string, position int) error {
	for _, other := range s.nodes[kind] {
		if other.ID == id || other.ParentID() != parentID {
			continue
		}
		if other.Name == name {
			return fmt.Errorf("%w: %s named %q already exists under %q", ErrConflict, kind, name, parentID)
		}
		if kind.Orderable() && other.Position == position {
			return fmt.Errorf("%w: %s position %d already taken under %q", ErrConflict, kind, position, parentID)
		}
	}
	return nil
}
