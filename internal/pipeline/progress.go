// Package pipeline is the foreground side of the copilot: it reads the visible
// page, collects profile details, classifies them through the background and
// decorates the page with the results.
package pipeline

// Step names reported through ProgressCallback.
const (
	StepDiscover = "discover_links"
	StepCache    = "load_cache"
	StepDetails  = "collect_details"
	StepSave     = "save_cache"
	StepClassify = "classify"
	StepAugment  = "augment"
	StepPublish  = "publish"
	StepOutreach = "outreach"
)

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
	Content any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)
