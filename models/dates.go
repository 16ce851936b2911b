// ABOUTME: Tolerant parsing of the free-form date cells found in lead rows
// ABOUTME: Handles day-first numeric dates, month names, ISO, timestamps and sheet serials
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day-first layouts are tried before month-first ones; a date like 03/04/2025
// is read as 3 April. Month-first is only reached when day-first cannot parse
// (for example 04/23/2025).
var sheetDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006 15:04:05",
	"2/1/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02/01/06",
	"2/1/06",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"02 January 2006",
	"2-Jan-2006",
	"02-Jan-2006",
	"2-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"Mon, 2 Jan 2006",
	"Monday, 2 January 2006",
}

// spreadsheetEpoch is day zero for spreadsheet serial dates.
var spreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseSheetDate parses a free-form date cell in loc. Ordinal suffixes
// ("1st", "22nd") and surrounding whitespace are ignored. Plain numbers in the
// plausible range are treated as spreadsheet serial dates.
func ParseSheetDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s := normalizeDateText(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial >= 20000 && serial <= 80000 {
			day := spreadsheetEpoch.AddDate(0, 0, int(serial))
			return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc), nil
		}
		return time.Time{}, fmt.Errorf("number %q is not a date", raw)
	}

	for _, layout := range sheetDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// DaysFromToday returns the number of calendar days from now's date to t's
// date in loc: 0 for today, 1 for tomorrow, negative for the past.
func DaysFromToday(t, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	a := now.In(loc)
	b := t.In(loc)
	today := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(day.Sub(today).Hours() / 24)
}

func normalizeDateText(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	fields := strings.Split(s, " ")
	for i, f := range fields {
		fields[i] = stripOrdinal(f)
	}
	return strings.Join(fields, " ")
}

// stripOrdinal turns "1st" into "1" and "22nd," into "22,".
func stripOrdinal(word string) string {
	trail := ""
	if strings.HasSuffix(word, ",") {
		trail = ","
		word = strings.TrimSuffix(word, ",")
	}
	lower := strings.ToLower(word)
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		if len(lower) > len(suffix) && strings.HasSuffix(lower, suffix) {
			if _, err := strconv.Atoi(lower[:len(lower)-len(suffix)]); err == nil {
				return word[:len(word)-len(suffix)] + trail
			}
		}
	}
	return word + trail
}
