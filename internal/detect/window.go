package detect

// Window is a transient slice of a long document processed independently by
// the detector. GlobalOffset locates Text[0] in the original document; spans
// reported against a window translate back by adding it.
type Window struct {
	ID           int
	GlobalOffset int
	Text         string
}

// Window sizing defaults, tuned against real contract and spreadsheet
// exports. The overlap exists so an entity straddling a window boundary is
// fully visible in at least one window; duplicates from the overlap are
// collapsed during the merge step.
const (
	DefaultWindowSize    = 30000
	DefaultWindowOverlap = 500

	DefaultMaxWindowsPerCall = 4
	DefaultMaxCharsPerCall   = 60000
)

// SplitWindows partitions text into fixed-size windows with the given
// overlap, recording each window's global starting offset. Text at most
// one window long comes back as a single window.
func SplitWindows(text string, size, overlap int) []Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultWindowOverlap
	}
	if len(text) <= size {
		return []Window{{ID: 0, GlobalOffset: 0, Text: text}}
	}

	var windows []Window
	pos := 0
	id := 0
	for pos < len(text) {
		end := pos + size
		if end > len(text) {
			end = len(text)
		}
		windows = append(windows, Window{ID: id, GlobalOffset: pos, Text: text[pos:end]})
		if end == len(text) {
			break
		}
		pos = end - overlap
		id++
	}
	return windows
}

// BatchWindows groups windows into per-call batches bounded by both a window
// count and a total character budget, controlling call volume without
// exceeding the collaborator's per-request limits.
func BatchWindows(windows []Window, maxWindows, maxChars int) [][]Window {
	if maxWindows <= 0 {
		maxWindows = DefaultMaxWindowsPerCall
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxCharsPerCall
	}

	var batches [][]Window
	var current []Window
	chars := 0
	for _, w := range windows {
		tooMany := len(current) >= maxWindows
		tooBig := len(current) > 0 && chars+len(w.Text) > maxChars
		if tooMany || tooBig {
			batches = append(batches, current)
			current = nil
			chars = 0
		}
		current = append(current, w)
		chars += len(w.Text)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
