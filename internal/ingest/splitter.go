package ingest

import "github.com/ragdesk/ragdesk/internal/chunker"

func newDefaultSplitter() textSplitter {
	return chunker.NewSplitter()
}
