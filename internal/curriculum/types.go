package curriculum

// ExamFile is the top-level document of a curriculum YAML file.
type ExamFile struct {
	Exam Entry `yaml:"exam"`
}

// Entry is one node of an exam tree. Children belong to the next level down:
// an exam's children are subjects, a subject's children are units, and so on
// to definitions.
type Entry struct {
	Name     string  `yaml:"name"`
	Status   string  `yaml:"status"`
	Children []Entry `yaml:"children"`

	// Exam-level details; ignored below the exam.
	Description     string `yaml:"description"`
	DurationMinutes int    `yaml:"duration_minutes"`
	TotalMarks      int    `yaml:"total_marks"`
}

// Count returns the number of entries in the tree rooted at e.
func (e Entry) Count() int {
	n := 1
	for _, c := range e.Children {
		n += c.Count()
	}
	return n
}

// Depth returns the number of levels in the tree rooted at e.
func (e Entry) Depth() int {
	deepest := 0
	for _, c := range e.Children {
		deepest = max(deepest, c.Depth())
	}
	return deepest + 1
}
