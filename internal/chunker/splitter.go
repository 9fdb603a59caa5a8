package chunker

// Split divides content into overlapping windows of at most windowSize runes,
// with exactly overlap runes shared between consecutive windows.
//
// Window boundaries prefer a natural breakpoint (the last newline, then the
// last space) within the final quarter of the window so chunks tend to end at
// line or word boundaries. Splitting is deterministic and lossless: dropping
// the first overlap runes of every window after the first and concatenating
// the rest reconstructs the input exactly.
func Split(content string, windowSize, overlap int) []string {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}
	if windowSize <= 0 || len(runes) <= windowSize {
		return []string{content}
	}
	if overlap < 0 || overlap >= windowSize {
		overlap = 0
	}

	var chunks []string
	start := 0
	for {
		end := start + windowSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		end = breakBefore(runes, start, end, overlap)
		chunks = append(chunks, string(runes[start:end]))
		start = end - overlap
	}
}

// breakBefore moves end back to just after the last newline (or, failing
// that, the last space) in the final quarter of the window. The floor keeps
// forward progress above the overlap so windows never stall.
func breakBefore(runes []rune, start, end, overlap int) int {
	floor := start + (end-start)*3/4
	if min := start + overlap + 1; floor < min {
		floor = min
	}

	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return end
}
