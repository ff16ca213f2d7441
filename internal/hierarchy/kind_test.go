package hierarchy_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    hierarchy.Kind
		wantErr bool
	}{
		{"exam", hierarchy.KindExam, false},
		{"Exams", hierarchy.KindExam, false},
		{"subjects", hierarchy.KindSubject, false},
		{"unit", hierarchy.KindUnit, false},
		{"chapters", hierarchy.KindChapter, false},
		{"topic", hierarchy.KindTopic, false},
		{"sub-topics", hierarchy.KindSubTopic, false},
		{"sub_topic", hierarchy.KindSubTopic, false},
		{"subtopic", hierarchy.KindSubTopic, false},
		{" definitions ", hierarchy.KindDefinition, false},
		{"lesson", hierarchy.KindInvalid, true},
		{"", hierarchy.KindInvalid, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := hierarchy.ParseKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, hierarchy.ErrInvalidArgument) {
				t.Errorf("ParseKind(%q) error = %v, want ErrInvalidArgument", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestKind_Relations(t *testing.T) {
	if got := hierarchy.KindExam.Parent(); got != hierarchy.KindInvalid {
		t.Errorf("Exam.Parent() = %v, want invalid", got)
	}
	if got := hierarchy.KindDefinition.Child(); got != hierarchy.KindInvalid {
		t.Errorf("Definition.Child() = %v, want invalid", got)
	}
	if got := hierarchy.KindChapter.Parent(); got != hierarchy.KindUnit {
		t.Errorf("Chapter.Parent() = %v, want unit", got)
	}
	if got := hierarchy.KindTopic.Child(); got != hierarchy.KindSubTopic {
		t.Errorf("Topic.Child() = %v, want sub_topic", got)
	}
	if got := len(hierarchy.KindExam.Descendants()); got != 6 {
		t.Errorf("len(Exam.Descendants()) = %d, want 6", got)
	}
	if got := len(hierarchy.KindDefinition.Descendants()); got != 0 {
		t.Errorf("len(Definition.Descendants()) = %d, want 0", got)
	}
	if got := hierarchy.KindChapter.Depth(); got != 3 {
		t.Errorf("Chapter.Depth() = %d, want 3", got)
	}
	anc := hierarchy.KindTopic.Ancestors()
	if len(anc) != 4 || anc[0] != hierarchy.KindExam || anc[3] != hierarchy.KindChapter {
		t.Errorf("Topic.Ancestors() = %v, want exam..chapter", anc)
	}
}

func TestKind_Names(t *testing.T) {
	tests := []struct {
		kind       hierarchy.Kind
		collection string
		idField    string
	}{
		{hierarchy.KindExam, "exams", "exam_id"},
		{hierarchy.KindSubTopic, "sub_topics", "sub_topic_id"},
		{hierarchy.KindDefinition, "definitions", "definition_id"},
		{hierarchy.KindInvalid, "", ""},
	}
	for _, tt := range tests {
		if got := tt.kind.Collection(); got != tt.collection {
			t.Errorf("%v.Collection() = %q, want %q", tt.kind, got, tt.collection)
		}
		if got := tt.kind.IDField(); got != tt.idField {
			t.Errorf("%v.IDField() = %q, want %q", tt.kind, got, tt.idField)
		}
	}
}

func TestKind_AllowsStatus(t *testing.T) {
	if !hierarchy.KindExam.AllowsStatus(hierarchy.StatusDraft) {
		t.Error("exam should allow draft")
	}
	if hierarchy.KindSubject.AllowsStatus(hierarchy.StatusDraft) {
		t.Error("subject should not allow draft")
	}
	if !hierarchy.KindDefinition.AllowsStatus(hierarchy.StatusInactive) {
		t.Error("definition should allow inactive")
	}
	if hierarchy.KindExam.AllowsStatus("archived") {
		t.Error("unknown status should not be allowed")
	}
	if hierarchy.KindExam.Orderable() {
		t.Error("exam should not be orderable")
	}
	if !hierarchy.KindSubTopic.Orderable() {
		t.Error("sub_topic should be orderable")
	}
}

func TestKind_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Kind hierarchy.Kind `json:"kind"`
	}{hierarchy.KindSubTopic})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"kind":"sub_topic"}` {
		t.Errorf("Marshal() = %s, want sub_topic", data)
	}

	var back struct {
		Kind hierarchy.Kind `json:"kind"`
	}
	if err := json.Unmarshal([]byte(`{"kind":"chapters"}`), &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Kind != hierarchy.KindChapter {
		t.Errorf("Unmarshal() kind = %v, want chapter", back.Kind)
	}
}
