// Package hierarchy implements the exam content tree: node storage, cascading
// delete and status propagation, and two-phase sibling reordering.
package hierarchy

import (
	"fmt"
	"strings"
)

// Kind identifies a level of the content tree.
type Kind int

const (
	KindInvalid Kind = iota
	KindExam
	KindSubject
	KindUnit
	KindChapter
	KindTopic
	KindSubTopic
	KindDefinition
)

// Chain lists every level from root to leaf.
var Chain = []Kind{
	KindExam,
	KindSubject,
	KindUnit,
	KindChapter,
	KindTopic,
	KindSubTopic,
	KindDefinition,
}

func (k Kind) String() string {
	switch k {
	case KindExam:
		return "exam"
	case KindSubject:
		return "subject"
	case KindUnit:
		return "unit"
	case KindChapter:
		return "chapter"
	case KindTopic:
		return "topic"
	case KindSubTopic:
		return "sub_topic"
	case KindDefinition:
		return "definition"
	default:
		return "invalid"
	}
}

// Valid reports whether k is one of the tree levels.
func (k Kind) Valid() bool {
	return k >= KindExam && k <= KindDefinition
}

// Collection is the table or collection name holding nodes of this kind.
func (k Kind) Collection() string {
	switch k {
	case KindExam:
		return "exams"
	case KindSubject:
		return "subjects"
	case KindUnit:
		return "units"
	case KindChapter:
		return "chapters"
	case KindTopic:
		return "topics"
	case KindSubTopic:
		return "sub_topics"
	case KindDefinition:
		return "definitions"
	default:
		return ""
	}
}

// IDField is the column descendants use to reference a node of this kind.
func (k Kind) IDField() string {
	if !k.Valid() {
		return ""
	}
	return k.String() + "_id"
}

// Parent returns the immediate parent level, or KindInvalid for the root.
func (k Kind) Parent() Kind {
	if k <= KindExam || k > KindDefinition {
		return KindInvalid
	}
	return k - 1
}

// Child returns the immediate child level, or KindInvalid for the leaf.
func (k Kind) Child() Kind {
	if !k.Valid() || k == KindDefinition {
		return KindInvalid
	}
	return k + 1
}

// Ancestors returns the levels above k, root first.
func (k Kind) Ancestors() []Kind {
	if !k.Valid() {
		return nil
	}
	return Chain[:k-KindExam]
}

// Descendants returns the levels below k, nearest first.
func (k Kind) Descendants() []Kind {
	if !k.Valid() {
		return nil
	}
	return Chain[k-KindExam+1:]
}

// Depth is the number of ancestors a node of this kind has.
func (k Kind) Depth() int {
	return len(k.Ancestors())
}

// Orderable reports whether siblings of this kind carry a unique position.
func (k Kind) Orderable() bool {
	return k.Valid() && k != KindExam
}

// AllowsStatus reports whether status s may be stored on a node of this kind.
func (k Kind) AllowsStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive:
		return k.Valid()
	case StatusDraft:
		return k == KindExam
	default:
		return false
	}
}

// ParseKind accepts singular or plural names, with dashes or underscores
// ("sub-topics", "subtopic", "sub_topic").
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", "_", "").Replace(norm)
	switch norm {
	case "exam", "exams":
		return KindExam, nil
	case "subject", "subjects":
		return KindSubject, nil
	case "unit", "units":
		return KindUnit, nil
	case "chapter", "chapters":
		return KindChapter, nil
	case "topic", "topics":
		return KindTopic, nil
	case "subtopic", "subtopics":
		return KindSubTopic, nil
	case "definition", "definitions":
		return KindDefinition, nil
	}
	return KindInvalid, fmt.Errorf("%w: unknown kind %q", ErrInvalidArgument, s)
}

// Status is the lifecycle state of a node.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
)

// MarshalText renders the kind by name in JSON and log output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
