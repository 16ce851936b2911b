// ABOUTME: Spreadsheet column letter encoding (A, B, ..., Z, AA, AB, ...)
// ABOUTME: Converts between zero-based column indexes and bijective base-26 letters
package rowmap

import (
	"fmt"
	"strings"
)

// IndexToLetter converts a zero-based column index to its letter form:
// 0 is A, 25 is Z, 26 is AA, 701 is ZZ. Negative indexes yield "".
func IndexToLetter(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append(b, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// LetterToIndex converts a column letter (case-insensitive) to its zero-based
// index.
func LetterToIndex(letter string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(letter))
	if s == "" {
		return 0, fmt.Errorf("empty column letter")
	}
	n := 0
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column letter %q", letter)
		}
		n = n*26 + int(r-'A'+1)
		if n > 1<<24 {
			return 0, fmt.Errorf("column letter %q out of range", letter)
		}
	}
	return n - 1, nil
}

// A1 builds a single-cell A1 range: sheet!ColumnRow.
func A1(sheet string, row, column int) string {
	return fmt.Sprintf("%s!%s%d", sheet, IndexToLetter(column), row)
}
