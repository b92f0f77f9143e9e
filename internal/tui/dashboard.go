package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/conorfennell/notedeck/internal/review"
)

var (
	bucketStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	bucketTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	mutedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	streakStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
)

// RenderDashboard renders the due buckets and the streak. Empty buckets
// are omitted; a zero total renders the all-done message.
func RenderDashboard(d review.Dashboard, width int) string {
	var b strings.Builder
	header := titleStyle.Render("Spaced Repetition")
	if d.Streak.Count > 0 {
		header += "  " + streakStyle.Render(fmt.Sprintf("%d day streak", d.Streak.Count))
	}
	b.WriteString(header + "\n")

	if d.TotalDue == 0 {
		b.WriteString("\n" + promptStyle.Render("All caught up!") + "\n")
		b.WriteString(mutedStyle.Render("You've completed all your spaced repetition reviews for today.") + "\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%s\n\n", mutedStyle.Render(fmt.Sprintf("%d reviews due", d.TotalDue)))

	style := bucketStyle
	if width > 4 {
		style = style.Width(width - 2)
	}
	for _, bucket := range d.Buckets {
		if len(bucket.Notes) == 0 {
			continue
		}
		var card strings.Builder
		card.WriteString(bucketTitleStyle.Render(fmt.Sprintf("%s (%d)", bucket.Interval.Title, len(bucket.Notes))) + "\n")
		card.WriteString(mutedStyle.Render(bucket.Interval.Description))
		for _, n := range bucket.Notes {
			card.WriteString("\n  " + n.ID)
		}
		b.WriteString(style.Render(card.String()) + "\n")
	}
	return b.String()
}
