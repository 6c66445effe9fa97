package types

// Label names, in the order the classifier emits its output distribution.
const (
	LabelBigBird   = "bigbird"
	LabelCount     = "count"
	LabelGrover    = "grover"
	LabelGrouch    = "grouch"
	LabelErnieBert = "erniebert"

	// LabelUnknown is returned when the winning index has no label.
	LabelUnknown = "N/A"
)

// DefaultLabels returns the fixed ordered label table.
func DefaultLabels() []string {
	return []string{LabelBigBird, LabelCount, LabelGrover, LabelGrouch, LabelErnieBert}
}

// ClassificationResult is the label and probability (0-100) assigned to a profile.
type ClassificationResult struct {
	Label string `json:"label"`
	Proba int    `json:"proba"`
}

// Annotatable reports whether the result carries enough to decorate the page.
func (r ClassificationResult) Annotatable() bool {
	return r.Label != "" && r.Proba >= 0
}

// ClassifiedProfile pairs a profile with its classification.
type ClassifiedProfile struct {
	Profile Profile              `json:"profile"`
	Result  ClassificationResult `json:"result"`
}
