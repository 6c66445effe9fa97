package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feed-copilot/internal/augment"
	"github.com/jonathan/feed-copilot/internal/pipeline"
	"github.com/jonathan/feed-copilot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	report := &pipeline.Report{
		RunID:     uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
		PageURL:   "https://www.linkedin.com/feed/",
		Links:     4,
		Cached:    1,
		Scraped:   2,
		Failed:    1,
		Augmented: augment.Stats{Text: 3, Images: 1},
		Profiles: []types.ClassifiedProfile{
			{Profile: types.Profile{User: "Ada Lovelace"}, Result: types.ClassificationResult{Label: types.LabelGrover, Proba: 92}},
		},
		Suggestion: "Hi Ada, I enjoyed your note on the analytical engine and would love to connect.",
		Duration:   1500 * time.Millisecond,
	}

	p.PrintReport(report)
	output := buf.String()

	assert.Contains(t, output, "COPILOT RUN 0f8fad5b")
	assert.Contains(t, output, "4 (1 cached, 2 scraped, 1 failed, 0 skipped)")
	assert.Contains(t, output, "3 text, 1 images, 0 ghosts")
	assert.Contains(t, output, "Ada Lovelace  grover 92%")
	assert.Contains(t, output, "Suggested message:")
	assert.Contains(t, output, "analytical")
	assert.NotContains(t, output, "Unclassified")
}

func TestPrintReport_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintReport(nil)
	assert.Empty(t, buf.String())
}

func TestPrintReport_ManyProfiles(t *testing.T) {
	var buf bytes.Buffer
	report := &pipeline.Report{}
	for i := 0; i < maxItemsToShow+3; i++ {
		report.Profiles = append(report.Profiles, types.ClassifiedProfile{Profile: types.Profile{User: "u"}})
	}

	NewPrinter(&buf).PrintReport(report)
	assert.Contains(t, buf.String(), "... and 3 more")
}

func TestPrintProfiles(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintProfiles([]types.Profile{
		{User: "Ada", Titles: "Engineer", Link: "https://www.linkedin.com/in/ada", Posts: []string{"a", "b"}},
		{User: "Bob", Titles: "Designer", Link: "https://www.linkedin.com/in/bob"},
	})
	output := buf.String()

	assert.Contains(t, output, "PROFILE CACHE")
	assert.Contains(t, output, "2 cached profiles")
	assert.Contains(t, output, "https://www.linkedin.com/in/ada (2 posts)")
	assert.Contains(t, output, "Designer")
}

func TestPrintProfiles_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintProfiles(nil)
	assert.Contains(t, buf.String(), "PROFILE CACHE IS EMPTY")
}

func TestPrintProfile(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintProfile(&types.Profile{
		User:   "Ada",
		Titles: "Engineer",
		Posts:  []string{"one", "two", "three", "four"},
	})
	output := buf.String()

	assert.Contains(t, output, "Recent activity")
	assert.Contains(t, output, "• three")
	assert.NotContains(t, output, "four")
	assert.Contains(t, output, "... and 1 more")
}

func TestPrintClassification(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintClassification(types.ClassificationResult{Label: types.LabelCount, Proba: 40})
	assert.Contains(t, buf.String(), "Label: count")
	assert.Contains(t, buf.String(), "Proba: 40%")
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintProgress(pipeline.ProgressEvent{Step: pipeline.StepDiscover, Message: "found 3 links"})
	assert.Equal(t, "[discover_links] found 3 links\n", buf.String())
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).printBox("T", strings.Repeat("é", 100))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.Equal(t, boxWidth, len([]rune(line)), line)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestWrap(t *testing.T) {
	lines := wrap("one two three four five", 9)
	assert.Equal(t, []string{"one two", "three", "four five"}, lines)
	assert.Nil(t, wrap("   ", 10))
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		dev     bool
		wantErr bool
	}{
		{"info", false, false},
		{"DEBUG", true, false},
		{" warn ", false, false},
		{"loud", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.dev)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}
