package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vidrag/internal/domain"
)

// ReadFile parses a transcript file, choosing the format by extension:
// .json for a [{text, start, duration}] array, .srt for SubRip.
func ReadFile(path string) ([]domain.Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(f)
	case ".srt":
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return ParseSRT(string(data))
	default:
		return nil, fmt.Errorf("unsupported transcript format %q", filepath.Ext(path))
	}
}

// ParseJSON decodes the transcript shape produced by common YouTube
// transcript fetchers.
func ParseJSON(r io.Reader) ([]domain.Line, error) {
	var lines []domain.Line
	if err := json.NewDecoder(r).Decode(&lines); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	for i, l := range lines {
		if l.Start < 0 {
			return nil, fmt.Errorf("line %d: negative start %v", i, l.Start)
		}
	}
	return lines, nil
}

// ParseSRT parses SubRip text. Each cue becomes one line; multi-line cue
// text is joined with spaces.
//
//	1
//	00:00:00,000 --> 00:00:01,830
//	I'm happy to
//	have you here today.
func ParseSRT(text string) ([]domain.Line, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		lines []domain.Line
		cur   *domain.Line
		parts []string
	)
	flush := func() {
		if cur != nil && len(parts) > 0 {
			cur.Text = strings.Join(parts, " ")
			lines = append(lines, *cur)
		}
		cur, parts = nil, nil
	}
	for n, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flush()
		case strings.Contains(line, "-->"):
			flush()
			start, end, err := parseCueTiming(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
			cur = &domain.Line{Start: start, Duration: end - start}
		case cur == nil:
			// sequence number or stray text before a timing line
		default:
			parts = append(parts, line)
		}
	}
	flush()
	return lines, nil
}

func parseCueTiming(line string) (float64, float64, error) {
	from, to, _ := strings.Cut(line, "-->")
	start, err := parseSRTTime(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, err
	}
	// drop cue settings after the end time
	fields := strings.Fields(to)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("missing end time in %q", line)
	}
	end, err := parseSRTTime(fields[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		end = start
	}
	return start, end, nil
}

// parseSRTTime parses HH:MM:SS,mmm (a '.' separator is accepted too).
func parseSRTTime(s string) (float64, error) {
	clock, millis, _ := strings.Cut(strings.Replace(s, ".", ",", 1), ",")
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	var total float64
	for _, p := range hms {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		total = total*60 + float64(v)
	}
	if millis != "" {
		ms, err := strconv.Atoi(millis)
		if err != nil || ms < 0 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		total += float64(ms) / 1000
	}
	return total, nil
}
