package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/feed-copilot/internal/pipeline"
	"github.com/jonathan/feed-copilot/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintReport outputs the summary of one run.
func (p *Printer) PrintReport(report *pipeline.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Page:      %s\n", report.PageURL))
	sb.WriteString(fmt.Sprintf("Links:     %d (%d cached, %d scraped, %d failed, %d skipped)\n",
		report.Links, report.Cached, report.Scraped, report.Failed, report.Skipped))
	sb.WriteString(fmt.Sprintf("Augmented: %d text, %d images, %d ghosts\n",
		report.Augmented.Text, report.Augmented.Images, report.Augmented.Ghosts))
	if report.Unclassified > 0 {
		sb.WriteString(fmt.Sprintf("Unclassified: %d\n", report.Unclassified))
	}
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", report.Duration.Round(time.Millisecond)))

	if len(report.Profiles) > 0 {
		sb.WriteString("\n")
		count := min(len(report.Profiles), maxItemsToShow)
		for i := 0; i < count; i++ {
			cp := report.Profiles[i]
			sb.WriteString(fmt.Sprintf("• %s  %s %d%%\n", cp.Profile.User, cp.Result.Label, cp.Result.Proba))
		}
		if len(report.Profiles) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(report.Profiles)-maxItemsToShow))
		}
	}

	if report.Suggestion != "" {
		sb.WriteString("\nSuggested message:\n")
		for _, line := range wrap(report.Suggestion, boxWidth-6) {
			sb.WriteString("  " + line + "\n")
		}
	}

	p.printBox("COPILOT RUN "+shortID(report.RunID.String()), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProfiles outputs the cached profiles.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProfiles(profiles []types.Profile) {
	if len(profiles) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "PROFILE CACHE IS EMPTY")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d cached profiles:\n\n", len(profiles)))
	for i, pr := range profiles {
		sb.WriteString(fmt.Sprintf("• %s\n", pr.User))
		sb.WriteString(fmt.Sprintf("  %s\n", pr.Titles))
		sb.WriteString(fmt.Sprintf("  %s (%d posts)\n", pr.Link, len(pr.Posts)))
		if i < len(profiles)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("PROFILE CACHE", sb.String())
}

// PrintProfile outputs one scraped profile.
func (p *Printer) PrintProfile(profile *types.Profile) {
	if profile == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("User:   %s\n", profile.User))
	sb.WriteString(fmt.Sprintf("Titles: %s\n", profile.Titles))
	sb.WriteString(fmt.Sprintf("Link:   %s\n", profile.Link))
	if len(profile.Posts) > 0 {
		sb.WriteString("\nRecent activity:\n")
		count := min(len(profile.Posts), 3)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", profile.Posts[i]))
		}
		if len(profile.Posts) > 3 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(profile.Posts)-3))
		}
	}

	p.printBox("PROFILE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintClassification outputs a classification result.
func (p *Printer) PrintClassification(result types.ClassificationResult) {
	p.printBox("CLASSIFICATION", fmt.Sprintf("Label: %s\nProba: %d%%", result.Label, result.Proba))
}

// PrintProgress writes one line per pipeline step.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(event pipeline.ProgressEvent) {
	fmt.Fprintf(p.out, "[%s] %s\n", event.Step, event.Message)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// wrap splits text into lines of at most width runes on word boundaries.
func wrap(text string, width int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && len([]rune(line.String()))+1+len([]rune(word)) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
