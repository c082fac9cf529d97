package format

import (
	"bytes"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgryski/go-bitstream"
	"github.com/pkg/errors"
)

// Clock supplies "now" for the upper bound of date-time validity checks.
// Tests substitute a clock.NewMock() so that "dates in the future are
// rejected" can be exercised deterministically.
var Clock clock.Clock = clock.New()

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DateTime is the year/month/day/hour/minute/second tuple described in
// §3 of the catalogue's data model. Its zero value is not a valid date.
type DateTime struct {
	Year, Month, Day, Hour, Minute, Second int
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func daysIn(year, month int) int {
	if month == 2 && isLeapYear(year) {
		return 29
	}
	return monthDays[month-1]
}

// Valid reports whether d is a calendar date-time no earlier than
// 2005-01-01 and no later than the current time.
func (d DateTime) Valid() bool {
	if d.Year < 2005 || d.Month < 1 || d.Month > 12 {
		return false
	}
	if d.Day < 1 || d.Day > daysIn(d.Year, d.Month) {
		return false
	}
	if d.Hour < 0 || d.Hour > 23 || d.Minute < 0 || d.Minute > 59 || d.Second < 0 || d.Second > 59 {
		return false
	}
	now := Clock.Now().UTC()
	t := time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, d.Second, 0, time.UTC)
	return !t.After(now)
}

// String renders d as "YYYY-MM-DD HH:MM:SS".
func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// EndOfDay returns d with its time-of-day fields pinned to 23:59:59, used
// by Q5 to make an inclusive end-of-day upper bound for a date range.
func (d DateTime) EndOfDay() DateTime {
	d.Hour, d.Minute, d.Second = 23, 59, 59
	return d
}

// ParseDateTime parses the "YYYY-MM-DD HH:MM:SS" text representation
// used by the ingestion CSVs.
func ParseDateTime(s string) (DateTime, error) {
	var d DateTime
	_, err := fmt.Sscanf(s, "%04d-%02d-%02d %02d:%02d:%02d", &d.Year, &d.Month, &d.Day, &d.Hour, &d.Minute, &d.Second)
	if err != nil {
		return DateTime{}, errors.Wrapf(err, "format: invalid date-time %q", s)
	}
	if !d.Valid() {
		return DateTime{}, errors.Errorf("format: invalid date-time %q", s)
	}
	return d, nil
}

// ParseDate parses the plain "YYYY-MM-DD" representation, defaulting the
// time of day to midnight.
func ParseDate(s string) (DateTime, error) {
	var d DateTime
	_, err := fmt.Sscanf(s, "%04d-%02d-%02d", &d.Year, &d.Month, &d.Day)
	if err != nil {
		return DateTime{}, errors.Wrapf(err, "format: invalid date %q", s)
	}
	if !d.Valid() {
		return DateTime{}, errors.Errorf("format: invalid date %q", s)
	}
	return d, nil
}

// yearBits, monthBits, etc. give the packed width of each field, MSB
// first, matching the §3 compact date-time encoding: unsigned ordering
// of the packed form coincides with chronological ordering.
const (
	yearBits   = 6
	monthBits  = 4
	dayBits    = 5
	hourBits   = 5
	minuteBits = 6
	secondBits = 6
)

// Pack encodes d into the 32-bit form stored in every *.dat record. d
// must be Valid.
func Pack(d DateTime) (uint32, error) {
	if !d.Valid() {
		return 0, errors.Errorf("format: cannot pack invalid date-time %v", d)
	}
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	w.WriteBits(uint64(d.Year-2005), yearBits)
	w.WriteBits(uint64(d.Month), monthBits)
	w.WriteBits(uint64(d.Day), dayBits)
	w.WriteBits(uint64(d.Hour), hourBits)
	w.WriteBits(uint64(d.Minute), minuteBits)
	w.WriteBits(uint64(d.Second), secondBits)
	w.Flush(bitstream.Zero)
	b := buf.Bytes()
	if len(b) != 4 {
		return 0, errors.Errorf("format: packed date-time has unexpected width %d", len(b))
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Unpack decodes a 32-bit packed date-time produced by Pack.
func Unpack(v uint32) DateTime {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	r := bitstream.NewReader(bytes.NewReader(b))
	year, _ := r.ReadBits(yearBits)
	month, _ := r.ReadBits(monthBits)
	day, _ := r.ReadBits(dayBits)
	hour, _ := r.ReadBits(hourBits)
	minute, _ := r.ReadBits(minuteBits)
	second, _ := r.ReadBits(secondBits)
	return DateTime{
		Year:   int(year) + 2005,
		Month:  int(month),
		Day:    int(day),
		Hour:   int(hour),
		Minute: int(minute),
		Second: int(second),
	}
}

// Compare returns -1, 0 or 1 as a sorts before, equal to, or after b. It
// compares the packed 32-bit forms directly, which is valid precisely
// because Pack preserves chronological order (§3).
func Compare(a, b DateTime) int {
	pa, _ := Pack(a)
	pb, _ := Pack(b)
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}
