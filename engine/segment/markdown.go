package segment

import "strings"

// splitMarkdown splits on heading markers (1-3 leading '#' at line start)
// into ordered sections, then greedily coalesces adjacent sections under
// the chunk size. A single oversized section recurses into the generic
// cascade.
func (s *Segmenter) splitMarkdown(text string) []string {
	sections := headingSections(text)

	var chunks []string
	var current string

	for _, section := range sections {
		if len(current)+len(section) <= s.ChunkSize {
			if current != "" {
				current += "\n" + section
			} else {
				current = section
			}
			continue
		}

		if current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}
		if len(section) > s.ChunkSize {
			chunks = append(chunks, s.splitGeneric(section)...)
			current = ""
		} else {
			current = section
		}
	}
	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return compact(chunks)
}

// headingSections cuts text before every line starting with "# ", "## ",
// or "### ". The first section may have no heading.
func headingSections(text string) []string {
	lines := strings.Split(text, "\n")
	var sections []string
	var current []string

	for _, line := range lines {
		if isHeading(line) && len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = current[:0]
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n"))
	}
	return sections
}

func isHeading(line string) bool {
	hashes := 0
	for hashes < len(line) && line[hashes] == '#' {
		hashes++
	}
	return hashes >= 1 && hashes <= 3 && hashes < len(line) && line[hashes] == ' '
}
