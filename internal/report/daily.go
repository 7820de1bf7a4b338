package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"smartlab/internal/attendance"
)

const sheetName = "Presenças"

var header = []string{"Nº Processo", "Nome", "Curso", "Estado", "Entradas/Saídas", "Tempo total"}

// DailyXLSX renders a daily summary as a single-sheet workbook and returns it
// with a suggested file name.
func DailyXLSX(summary attendance.DailySummary) (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("drop default sheet: %w", err)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 16)
	_ = f.SetColWidth(sheetName, "B", "B", 28)
	_ = f.SetColWidth(sheetName, "C", "C", 20)
	_ = f.SetColWidth(sheetName, "D", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "E", 40)
	_ = f.SetColWidth(sheetName, "F", "F", 12)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("header style: %w", err)
	}

	title := fmt.Sprintf("Presenças de %s (%d presentes, %d ausentes)",
		summary.Date, len(summary.Present), len(summary.Absent))
	_ = f.SetCellValue(sheetName, "A1", title)
	_ = f.MergeCell(sheetName, "A1", colName(len(header))+"1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	for i, h := range header {
		_ = f.SetCellValue(sheetName, cell(colName(i+1), 2), h)
	}
	_ = f.SetCellStyle(sheetName, "A2", colName(len(header))+"2", headerStyle)

	row := 3
	for _, a := range summary.Present {
		state := "Saiu"
		if a.Inside {
			state = "Presente"
		}
		values := []any{a.Person.ProcessNumber, a.Person.Name, a.Person.Course, state, cycles(a.Records), totalTime(a.Records)}
		if err := f.SetSheetRow(sheetName, cell("A", row), &values); err != nil {
			return nil, "", fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}
	for _, p := range summary.Absent {
		values := []any{p.ProcessNumber, p.Name, p.Course, "Ausente", "-", "-"}
		if err := f.SetSheetRow(sheetName, cell("A", row), &values); err != nil {
			return nil, "", fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}
	return buf, fmt.Sprintf("presencas_%s.xlsx", summary.Date), nil
}

// cycles renders "08:00:00-12:00:00, 13:00:00-..." for the day's records.
func cycles(records []attendance.Record) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		if r.CheckIn == nil {
			continue
		}
		out := "..."
		if r.CheckOut != nil {
			out = r.CheckOut.String()
		}
		parts = append(parts, r.CheckIn.String()+"-"+out)
	}
	return strings.Join(parts, ", ")
}

// totalTime sums closed cycles as H:MM.
func totalTime(records []attendance.Record) string {
	var secs int
	for _, r := range records {
		if r.Closed() {
			secs += int(*r.CheckOut - *r.CheckIn)
		}
	}
	return fmt.Sprintf("%d:%02d", secs/3600, secs/60%60)
}

func colName(n int) string {
	name, _ := excelize.ColumnNumberToName(n)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
