// Package crawling discovers profile links on the visible page.
package crawling

import "fmt"

// LinkExtractionError represents a failure in extracting links from HTML
type LinkExtractionError struct {
	Message string
	Cause   error
}

func (e *LinkExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("link extraction error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("link extraction error: %s", e.Message)
}

func (e *LinkExtractionError) Unwrap() error {
	return e.Cause
}
