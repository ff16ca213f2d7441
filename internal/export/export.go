// Package export renders an exam tree as an XLSX workbook.
package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
)

// SheetName is the worksheet holding the exported tree.
const SheetName = "Hierarchy"

// Header is the first row of the exported sheet: one column per level, then
// the status and position of the row's deepest node.
var Header = []string{"Exam", "Subject", "Unit", "Chapter", "Topic", "Sub Topic", "Definition", "Status", "Position"}

// ExamWorkbook loads every node under examID and writes one row per node in
// depth-first position order. The caller must close the returned file.
func ExamWorkbook(ctx context.Context, store hierarchy.Store, examID string) (*excelize.File, error) {
	if err := hierarchy.ValidateID(examID); err != nil {
		return nil, err
	}
	exam, err := store.Get(ctx, hierarchy.KindExam, examID)
	if err != nil {
		return nil, err
	}

	children := map[string][]hierarchy.Node{}
	for _, k := range hierarchy.KindExam.Descendants() {
		nodes, err := store.List(ctx, k, hierarchy.Where(hierarchy.KindExam, examID))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", k, err)
		}
		for _, n := range nodes {
			children[n.ParentID()] = append(children[n.ParentID()], n)
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	w := &sheetWriter{f: f, row: 1}
	if err := w.writeRow(toAny(Header)); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.walk(*exam, nil, children); err != nil {
		_ = f.Close()
		return nil, err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, style)
	}
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return f, nil
}

type sheetWriter struct {
	f   *excelize.File
	row int
}

// walk writes n and then its children. names holds the ancestors' names.
func (w *sheetWriter) walk(n hierarchy.Node, names []string, children map[string][]hierarchy.Node) error {
	names = append(names, n.Name)

	cells := make([]any, len(hierarchy.Chain)+2)
	for i := range hierarchy.Chain {
		cells[i] = ""
		if i < len(names) {
			cells[i] = names[i]
		}
	}
	cells[len(hierarchy.Chain)] = string(n.Status)
	cells[len(hierarchy.Chain)+1] = n.Position
	if err := w.writeRow(cells); err != nil {
		return err
	}

	for _, c := range children[n.ID] {
		if err := w.walk(c, names, children); err != nil {
			return err
		}
	}
	return nil
}

func (w *sheetWriter) writeRow(cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", w.row, err)
	}
	w.row++
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
