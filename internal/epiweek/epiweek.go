// Package epiweek derives the jurisdiction × ISO-week join key.
// Every source keys its rows through Derive; no other package computes week numbers.
package epiweek

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/epimart/internal/contracts"
)

// 2-letter state code or special jurisdiction code (NYC, FSM, RP, US ...)
var codePattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,3}$`)

// NormalizeCode trims and upper-cases a jurisdiction code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is keyable after normalization
func ValidCode(code string) bool {
	return codePattern.MatchString(NormalizeCode(code))
}

// Derive returns the ISO-8601 week key for a jurisdiction and calendar date
// ⭐ SSOT: 주차 계산은 여기서만 (연도는 ISO week-year, 달력 연도 아님)
func Derive(code string, date time.Time) (contracts.JurisdictionWeekKey, error) {
	norm := NormalizeCode(code)
	if !codePattern.MatchString(norm) {
		return contracts.JurisdictionWeekKey{}, fmt.Errorf("invalid jurisdiction code %q", code)
	}
	if date.IsZero() {
		return contracts.JurisdictionWeekKey{}, fmt.Errorf("zero date for jurisdiction %s", norm)
	}

	// 날짜만 사용 (타임존으로 인한 주차 이동 방지)
	y, m, d := date.Date()
	year, week := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).ISOWeek()

	return contracts.JurisdictionWeekKey{
		Jurisdiction: norm,
		Year:         year,
		Week:         week,
	}, nil
}

// MustDerive is Derive for fixtures and constants; it panics on error
func MustDerive(code string, date time.Time) contracts.JurisdictionWeekKey {
	key, err := Derive(code, date)
	if err != nil {
		panic(err)
	}
	return key
}

// ParseKey is the inverse of JurisdictionWeekKey.String
func ParseKey(s string) (contracts.JurisdictionWeekKey, error) {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return contracts.JurisdictionWeekKey{}, fmt.Errorf("key %q too short", s)
	}

	code := s[:len(s)-6]
	year, err := strconv.Atoi(s[len(s)-6 : len(s)-2])
	if err != nil {
		return contracts.JurisdictionWeekKey{}, fmt.Errorf("key %q: year: %w", s, err)
	}
	week, err := strconv.Atoi(s[len(s)-2:])
	if err != nil {
		return contracts.JurisdictionWeekKey{}, fmt.Errorf("key %q: week: %w", s, err)
	}

	if !codePattern.MatchString(code) {
		return contracts.JurisdictionWeekKey{}, fmt.Errorf("key %q: invalid jurisdiction code %q", s, code)
	}
	if week < 1 || week > WeeksInYear(year) {
		return contracts.JurisdictionWeekKey{}, fmt.Errorf("key %q: week %d out of range", s, week)
	}

	return contracts.JurisdictionWeekKey{Jurisdiction: code, Year: year, Week: week}, nil
}

// WeekStart returns the Monday (UTC) of the given ISO week
func WeekStart(year, week int) time.Time {
	// Jan 4 is always in ISO week 1
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7 // Monday = 0
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7)
}

// WeeksInYear returns 52 or 53
func WeeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}
