package extractor

import "strings"

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// SplitIntoChunks cuts text into rune windows of chunkSize that overlap by
// overlap runes. Blank windows are dropped.
func SplitIntoChunks(text string, chunkSize int, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	r := []rune(text)

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	out := make([]string, 0, (len(r)/step)+1)
	for start := 0; start < len(r); start += step {
		end := start + chunkSize
		if end > len(r) {
			end = len(r)
		}
		if p := strings.TrimSpace(string(r[start:end])); p != "" {
			out = append(out, p)
		}
		if end == len(r) {
			break
		}
	}
	return out
}
