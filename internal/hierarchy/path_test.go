package hierarchy_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
)

const (
	examID    = "0b7e6c2a-4f7e-4d8e-9d0a-1f2e3d4c5b6a"
	subjectID = "1c8f7d3b-5a8f-4e9f-8e1b-2a3f4e5d6c7b"
	unitID    = "2d9a8e4c-6b9a-4fa0-9f2c-3b4a5f6e7d8c"
)

func TestPath_Validate(t *testing.T) {
	tests := []struct {
		name    string
		path    hierarchy.Path
		kind    hierarchy.Kind
		wantErr bool
	}{
		{"exam has no ancestors", nil, hierarchy.KindExam, false},
		{"subject under exam", hierarchy.Path{examID}, hierarchy.KindSubject, false},
		{"chapter full path", hierarchy.Path{examID, subjectID, unitID}, hierarchy.KindChapter, false},
		{"unit missing subject", hierarchy.Path{examID}, hierarchy.KindUnit, true},
		{"exam with parent", hierarchy.Path{examID}, hierarchy.KindExam, true},
		{"malformed id", hierarchy.Path{"not-a-uuid"}, hierarchy.KindSubject, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.path.Validate(tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, hierarchy.ErrInvalidArgument) {
				t.Errorf("Validate() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestPath_Accessors(t *testing.T) {
	p := hierarchy.Path{examID, subjectID}

	if got := p.ID(hierarchy.KindExam); got != examID {
		t.Errorf("ID(exam) = %q, want %q", got, examID)
	}
	if got := p.ID(hierarchy.KindUnit); got != "" {
		t.Errorf("ID(unit) = %q, want empty", got)
	}
	if got := p.Parent(); got != subjectID {
		t.Errorf("Parent() = %q, want %q", got, subjectID)
	}
	if got := (hierarchy.Path{}).Parent(); got != "" {
		t.Errorf("empty Parent() = %q, want empty", got)
	}

	child := p.Child(unitID)
	if len(child) != 3 || child[2] != unitID {
		t.Errorf("Child() = %v, want 3 ids ending in unit", child)
	}
	if len(p) != 2 {
		t.Errorf("Child() mutated receiver: %v", p)
	}
	if !child.HasPrefix(p) {
		t.Error("child path should have parent path as prefix")
	}
	if p.HasPrefix(child) {
		t.Error("shorter path cannot have longer prefix")
	}
	if (hierarchy.Path{subjectID}).HasPrefix(hierarchy.Path{examID}) {
		t.Error("HasPrefix() matched different ids")
	}

	fields := child.Fields()
	if fields["subject_id"] != subjectID || fields["unit_id"] != unitID {
		t.Errorf("Fields() = %v", fields)
	}
}

func TestValidateID(t *testing.T) {
	if err := hierarchy.ValidateID(hierarchy.NewID()); err != nil {
		t.Errorf("ValidateID(NewID()) error = %v", err)
	}
	for _, id := range []string{"", "123", "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz"} {
		if err := hierarchy.ValidateID(id); !errors.Is(err, hierarchy.ErrInvalidArgument) {
			t.Errorf("ValidateID(%q) error = %v, want ErrInvalidArgument", id, err)
		}
	}
}
