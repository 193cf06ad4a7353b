package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Parse reads TLE text from r. Both the three-line form (a name line,
// optionally prefixed "0 ", then lines 1 and 2) and the bare two-line form
// are accepted; bare entries are named after their NORAD number.
// Malformed entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var (
		entries     []TLEEntry
		name, line1 string
		lineNo      int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		switch {
		case line == "":
		case strings.HasPrefix(line, "1 "):
			if line1 != "" {
				logger.Warn("skipping TLE entry without line 2", "line", lineNo-1, "name", name)
			}
			line1 = line
		case strings.HasPrefix(line, "2 "):
			if line1 == "" {
				logger.Warn("skipping TLE line 2 without line 1", "line", lineNo)
				name = ""
				continue
			}
			e, err := parseEntry(name, line1, line)
			if err != nil {
				logger.Warn("skipping malformed TLE entry", "line", lineNo, "name", name, "error", err)
			} else {
				entries = append(entries, e)
			}
			name, line1 = "", ""
		default:
			if line1 != "" {
				logger.Warn("skipping TLE entry without line 2", "line", lineNo-1, "name", name)
				line1 = ""
			}
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}
	return entries, nil
}

func parseEntry(name, line1, line2 string) (TLEEntry, error) {
	if len(line1) < 32 || len(line2) < 7 {
		return TLEEntry{}, errors.New("line too short")
	}

	// Catalog number in columns 3-7 of both lines.
	noradID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return TLEEntry{}, fmt.Errorf("invalid NORAD ID %q: %w", line1[2:7], err)
	}
	if other, err := strconv.Atoi(strings.TrimSpace(line2[2:7])); err != nil || other != noradID {
		return TLEEntry{}, fmt.Errorf("line 2 catalog number %q does not match %d", line2[2:7], noradID)
	}

	// Epoch in columns 19-32.
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return TLEEntry{}, err
	}

	if name == "" {
		name = "NORAD " + strconv.Itoa(noradID)
	}
	return TLEEntry{
		NORADID: noradID,
		Name:    name,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// parseEpoch converts a YYDDD.DDDDDDDD epoch. Years 57-99 are 19xx, 00-56
// are 20xx. Day 1 is January 1.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}
	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil || day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("invalid epoch day %q", s[2:])
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}
