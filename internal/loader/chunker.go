package loader

import "strings"

// ChunkConfig defines the fixed-window chunking parameters. Sizes are in
// characters; the defaults approximate a 500-token window with a 50-token
// overlap. They are tunables, not correctness requirements.
type ChunkConfig struct {
	// Size is the target window length.
	Size int
	// Overlap is how much of the previous window is repeated at the start of
	// the next one, preserving context across boundaries.
	Overlap int
}

// DefaultChunkConfig returns the standard window parameters.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    2000,
		Overlap: 200,
	}
}

// split cuts text into overlapping windows. Window boundaries are pulled back
// to the nearest whitespace where possible so words are not cut in half.
func split(text string, cfg ChunkConfig) []string {
	if len(text) <= cfg.Size {
		return []string{text}
	}

	var out []string
	step := cfg.Size - cfg.Overlap
	for start := 0; start < len(text); start += step {
		end := start + cfg.Size
		if end >= len(text) {
			out = append(out, strings.TrimSpace(text[start:]))
			break
		}
		// Prefer breaking at whitespace within the last tenth of the window.
		// The cut must not land before the next window's start, or the text
		// between them would appear in no chunk.
		cut := end
		minCut := (cfg.Size * 9) / 10
		if minCut < step {
			minCut = step
		}
		if idx := strings.LastIndexAny(text[start:end], " \n\t"); idx >= minCut {
			cut = start + idx
		}
		out = append(out, strings.TrimSpace(text[start:cut]))
	}

	// Drop empty windows produced by whitespace runs.
	filtered := out[:0]
	for _, c := range out {
		if c != "" {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
