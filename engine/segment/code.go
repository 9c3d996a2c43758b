package segment

import "strings"

// overlapLines is how many trailing lines carry over into the next
// fragment when a code fragment closes, preserving local context.
const overlapLines = 3

// codeBoundaries mark lines that begin a new logical block.
var codeBoundaries = []string{"def ", "async def ", "class ", "# ===", "# ---"}

func isCodeBoundary(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range codeBoundaries {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// splitCode scans line by line and closes a fragment at each block
// boundary once the accumulated fragment exceeds half the chunk size,
// carrying the last few lines forward as overlap. Fragments that grow
// past the chunk size close unconditionally.
func (s *Segmenter) splitCode(text string) []string {
	var chunks []string
	var current []string
	size := 0

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		lineLen := len(line) + 1 // newline

		if isCodeBoundary(line) && size > s.ChunkSize/2 {
			if chunk := strings.TrimSpace(strings.Join(current, "\n")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			current = append(carryOverlap(current), line)
			size = joinedLen(current)
			continue
		}

		current = append(current, line)
		size += lineLen

		if size >= s.ChunkSize {
			if chunk := strings.TrimSpace(strings.Join(current, "\n")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			current = carryOverlap(current)
			size = joinedLen(current)
		}
	}

	if chunk := strings.TrimSpace(strings.Join(current, "\n")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func carryOverlap(lines []string) []string {
	if len(lines) <= overlapLines {
		return nil
	}
	carried := make([]string, overlapLines)
	copy(carried, lines[len(lines)-overlapLines:])
	return carried
}

func joinedLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}
