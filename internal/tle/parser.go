package tle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Parse reads 3-line TLE text (name, line 1, line 2) from r.
// Entries that fail Decode are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []TLEEntry
	for i := 0; i+2 < len(lines); {
		name, line1, line2 := lines[i], lines[i+1], lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Resynchronise on the next candidate triplet.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		el, err := Decode(line1, line2)
		if err != nil {
			logger.Warn("skipping undecodable TLE entry", "name", name, "error", err)
			i += 3
			continue
		}

		entries = append(entries, TLEEntry{
			SatelliteID: el.SatelliteID,
			Name:        strings.TrimSpace(name),
			Plane:       -1,
			Epoch:       el.Epoch,
			Line1:       line1,
			Line2:       line2,
		})
		i += 3
	}

	return entries, nil
}

// Format renders entries as 3-line TLE text, the inverse of Parse.
func Format(entries []TLEEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("SAT-%05d", e.SatelliteID)
		}
		fmt.Fprintf(&buf, "%s\n%s\n%s\n", name, e.Line1, e.Line2)
	}
	return buf.Bytes()
}
