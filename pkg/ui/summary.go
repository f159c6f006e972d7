package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"clipharvest/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(cyan).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(magenta)
)

// Table renders rows under headers with the application border style
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// ReportTable renders per-entity message aggregates
func ReportTable(aggs []models.UserAggregate) string {
	rows := make([][]string, len(aggs))
	for i, a := range aggs {
		rows[i] = []string{
			a.EntityID,
			strconv.Itoa(a.MessageCount),
			strconv.Itoa(a.DistinctClipCount),
			strconv.Itoa(a.SubscribedCount),
			strconv.Itoa(a.GiftingCount),
			strconv.Itoa(a.GiftingAmount),
			strconv.Itoa(a.CheerCount),
			strconv.Itoa(a.CheerAmount),
		}
	}
	return Table([]string{"user", "messages", "clips", "subs", "gifts", "gifted", "cheers", "bits"}, rows)
}

// ClipReportTable renders per-entity clip summaries
func ClipReportTable(sums []models.ClipSummary) string {
	rows := make([][]string, len(sums))
	for i, s := range sums {
		rows[i] = []string{
			s.EntityID,
			strconv.Itoa(s.ClipCount),
			strconv.Itoa(s.ClipsWithVideoID),
			strconv.FormatFloat(s.DurationWithVideoID, 'f', 1, 64),
		}
	}
	return Table([]string{"user", "clips", "with vod", "vod seconds"}, rows)
}
