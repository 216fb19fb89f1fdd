package render

import "strings"

// NormalizeTable makes every row the same width. Trailing empty cells are
// dropped, the width becomes the longest remaining row, and shorter rows are
// right-padded with "". The row count is unchanged. A table with no text at
// all yields nil.
func NormalizeTable(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		if n := usedWidth(r); n > width {
			width = n
		}
	}
	if width == 0 {
		return nil
	}

	out := make([][]string, len(rows))
	for i, r := range rows {
		row := make([]string, width)
		copy(row, r[:min(len(r), width)])
		out[i] = row
	}
	return out
}

func usedWidth(row []string) int {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return n
}
