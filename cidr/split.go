package cidr

import (
	"fmt"
	"strings"
)

// Split packs fragments into consecutive alternation chunks of at most width
// characters. It never splits inside a fragment, so every chunk is a complete
// alternation on its own and strings.Join(chunks, "|") equals
// Combine(fragments). A width <= 0 selects DefaultMaxWidth.
func Split(fragments []string, width int) ([]string, error) {
	if width <= 0 {
		width = DefaultMaxWidth
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	for i, f := range fragments {
		switch {
		case f == "":
			return nil, fmt.Errorf("fragment %d: %w", i, ErrEmptyFragment)
		case len(f) > width:
			return nil, fmt.Errorf("fragment %d is %d characters, width is %d: %w", i, len(f), width, ErrFragmentTooWide)
		}

		if cur.Len() > 0 && cur.Len()+1+len(f) > width {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('|')
		}
		cur.WriteString(f)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks, nil
}
