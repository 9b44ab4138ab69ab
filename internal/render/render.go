package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatali-fataliyev/budget_watch/internal/report"
)

const (
	FORMAT_CSV  = "csv"
	FORMAT_JSON = "json"

	FILE_MONTH_LAYOUT = "2006-01"
)

// Artifact is a rendered report ready to be attached to an email.
type Artifact struct {
	FileName    string
	ContentType string
	Content     []byte
}

type Renderer interface {
	Render(data report.ReportData) (Artifact, error)
}

// ForFormat returns the renderer for a report format preference. Empty means CSV.
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FORMAT_CSV:
		return CSVRenderer{}, nil
	case FORMAT_JSON:
		return JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format '%s'", format)
	}
}

func fileName(data report.ReportData, ext string) string {
	return fmt.Sprintf("budget-report-%s.%s", data.Period.Start.Format(FILE_MONTH_LAYOUT), ext)
}

type CSVRenderer struct{}

// Render writes a summary block followed by the expense categories.
func (CSVRenderer) Render(data report.ReportData) (Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"Month", data.Month},
		{"Currency", data.Currency},
		{"Total Income", data.TotalIncome.StringFixed(2)},
		{"Total Expenses", data.TotalExpenses.StringFixed(2)},
		{"Net Savings", data.NetSavings.StringFixed(2)},
		{"Savings Rate (%)", strconv.FormatFloat(data.SavingsRate, 'f', 2, 64)},
		{"Transactions", strconv.Itoa(data.TransactionCount)},
		{},
		{"Category", "Amount", "Top"},
	}

	top := make(map[string]bool, len(data.TopCategories))
	for _, c := range data.TopCategories {
		top[c.Name] = true
	}
	for _, c := range data.ExpenseCategories {
		rows = append(rows, []string{c.Name, c.Amount.StringFixed(2), strconv.FormatBool(top[c.Name])})
	}

	if err := w.WriteAll(rows); err != nil {
		return Artifact{}, fmt.Errorf("failed to write csv report: %w", err)
	}

	return Artifact{
		FileName:    fileName(data, FORMAT_CSV),
		ContentType: "text/csv",
		Content:     buf.Bytes(),
	}, nil
}

type JSONRenderer struct{}

func (JSONRenderer) Render(data report.ReportData) (Artifact, error) {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to marshal json report: %w", err)
	}

	return Artifact{
		FileName:    fileName(data, FORMAT_JSON),
		ContentType: "application/json",
		Content:     content,
	}, nil
}
