package chunker

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts document text into bounded, overlapping chunks sized for
// embedding. Splitting is pure and deterministic: the same input always
// yields the same chunks.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewSplitter() *Splitter {
	return &Splitter{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Separators:   DefaultSeparators,
	}
}

// Split breaks text on the highest-priority separator present, greedily
// packs the pieces into chunks of at most ChunkSize, recursing into pieces
// that are still too large with the remaining separators. Each chunk after
// the first is then prefixed with up to ChunkOverlap characters of the
// previous chunk, cut at a separator boundary when one exists.
//
// Separators stay attached to the front of the following piece, so
// concatenating the chunks (minus the stitched overlap) reproduces the
// input exactly.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	chunks := s.splitRecursive(text, s.Separators)
	if s.ChunkOverlap > 0 {
		chunks = s.stitchOverlap(chunks)
	}
	return chunks
}

func (s *Splitter) splitRecursive(text string, separators []string) []string {
	if len(text) <= s.ChunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		// Nothing left to split on; an oversized chunk beats losing text.
		return []string{text}
	}

	sep := separators[len(separators)-1]
	rest := separators
	for i, candidate := range separators {
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	pieces := strings.Split(text, sep)
	for i := 1; i < len(pieces); i++ {
		pieces[i] = sep + pieces[i]
	}

	var chunks []string
	var current string
	for _, piece := range pieces {
		if len(current)+len(piece) <= s.ChunkSize {
			current += piece
			continue
		}
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
		if len(piece) > s.ChunkSize {
			chunks = append(chunks, s.splitRecursive(piece, rest)...)
			continue
		}
		current = piece
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func (s *Splitter) stitchOverlap(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}
	out := make([]string, 0, len(chunks))
	out = append(out, chunks[0])
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		point := s.ChunkOverlap
		if point > len(prev) {
			point = len(prev)
		}
		// Prefer cutting the carried suffix at a separator boundary
		// instead of mid token.
		tail := prev[len(prev)-point:]
		for _, sep := range s.Separators {
			if sep == "" {
				continue
			}
			if idx := strings.LastIndex(tail, sep); idx > 0 {
				point = len(tail) - idx - len(sep)
				break
			}
		}
		out = append(out, prev[len(prev)-point:]+chunks[i])
	}
	return out
}
