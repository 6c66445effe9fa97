// Package messaging is the only channel between the foreground (page) context
// and the background (browser and model) context. Requests and responses are
// closed variant sets; every request is answered at most once.
package messaging

import "github.com/jonathan/feed-copilot/internal/types"

// Request is a message sent to another context.
type Request interface {
	isRequest()
	// Kind names the variant for logs.
	Kind() string
}

// Response answers a Request.
type Response interface {
	isResponse()
}

// ScrapeRequest asks the background to render a profile link in a hidden tab.
type ScrapeRequest struct {
	Link types.ProfileLink `json:"link"`
}

// ClassifyRequest asks the background to classify a profile's descriptions.
type ClassifyRequest struct {
	Descriptions string `json:"descriptions"`
}

// RunRequest asks the foreground to start its pipeline.
type RunRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (ScrapeRequest) isRequest()   {}
func (ClassifyRequest) isRequest() {}
func (RunRequest) isRequest()      {}

// Kind implements Request.
func (ScrapeRequest) Kind() string { return "scrape" }

// Kind implements Request.
func (ClassifyRequest) Kind() string { return "classify" }

// Kind implements Request.
func (RunRequest) Kind() string { return "run" }

// ScrapeResponse carries the rendered markup, or Failed when the scrape did not complete.
type ScrapeResponse struct {
	Markup string `json:"profile,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// ClassifyResponse carries the classification of a ClassifyRequest.
type ClassifyResponse struct {
	Proba int    `json:"proba"`
	Label string `json:"label"`
}

// Result converts the response to the shared result type.
func (r ClassifyResponse) Result() types.ClassificationResult {
	return types.ClassificationResult{Label: r.Label, Proba: r.Proba}
}

// RunResponse acknowledges a RunRequest.
type RunResponse struct {
	Farewell string `json:"farewell"`
}

func (ScrapeResponse) isResponse()   {}
func (ClassifyResponse) isResponse() {}
func (RunResponse) isResponse()      {}
