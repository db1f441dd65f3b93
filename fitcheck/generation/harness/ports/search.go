package harnessports

import "context"

// Artifact is one retrieved item from a visual search.
type Artifact struct {
	Name      string
	Data      []byte
	MIMEType  string
	SourceURL string // provenance, empty when unknown
}

// Searcher retrieves visual inspiration for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Artifact, error)
}
