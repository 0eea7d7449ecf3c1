package subtitle

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

var timestampPattern = regexp.MustCompile(
	`(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

// ParseSRT parses SRT content into cues. Malformed blocks are skipped and
// reported as warnings rather than failing the whole file.
func ParseSRT(content string) ([]Cue, []string, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var (
		cues     []Cue
		warnings []string
	)
	nextIndex := 1

	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		lines := strings.Split(block, "\n")
		timeLine := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timeLine = i
				break
			}
		}
		if timeLine == -1 {
			warnings = append(warnings, fmt.Sprintf("block %q: no timestamp line", truncateForWarning(block)))
			continue
		}

		match := timestampPattern.FindStringSubmatch(lines[timeLine])
		if match == nil {
			warnings = append(warnings, fmt.Sprintf("block %q: unparseable timestamps", truncateForWarning(block)))
			continue
		}

		startMS := timestampToMS(match[1], match[2], match[3], match[4])
		endMS := timestampToMS(match[5], match[6], match[7], match[8])

		index := nextIndex
		if timeLine > 0 {
			if parsed, err := strconv.Atoi(strings.TrimSpace(lines[timeLine-1])); err == nil {
				index = parsed
			}
		}

		text := strings.TrimSpace(strings.Join(lines[timeLine+1:], "\n"))
		cue := Cue{Index: index, StartMS: startMS, EndMS: endMS, Text: text}
		if err := cue.Validate(); err != nil {
			warnings = append(warnings, err.Error())
			continue
		}

		cues = append(cues, cue)
		nextIndex = index + 1
	}

	sort.SliceStable(cues, func(i, j int) bool { return cues[i].StartMS < cues[j].StartMS })
	warnings = append(warnings, overlapWarnings(cues)...)
	return cues, warnings, nil
}

// ParseSRTFile reads and parses an SRT file. Content that is not valid UTF-8
// is retried as GBK, which covers the common Chinese subtitle encodings.
func ParseSRTFile(path string) ([]Cue, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read subtitle file: %w", err)
	}
	content, err := decodeSubtitleBytes(raw)
	if err != nil {
		return nil, nil, err
	}
	return ParseSRT(content)
}

func decodeSubtitleBytes(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode subtitle content (tried utf-8, gbk): %w", err)
	}
	return string(decoded), nil
}

// WriteSRT renders cues as SRT, renumbering sequentially from 1.
func WriteSRT(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(formatTimestamp(cue.StartMS))
		b.WriteString(" --> ")
		b.WriteString(formatTimestamp(cue.EndMS))
		b.WriteString("\n")
		b.WriteString(cue.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// WriteSRTFile writes cues to an SRT file.
func WriteSRTFile(path string, cues []Cue) error {
	if err := os.WriteFile(path, []byte(WriteSRT(cues)), 0o644); err != nil {
		return fmt.Errorf("write subtitle file: %w", err)
	}
	return nil
}

// ParseText converts plain text into untimed cues, one per non-empty line.
// Untimed cues carry zero windows and are only usable for simple
// concatenation dubbing.
func ParseText(content string) []Cue {
	var cues []Cue
	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cues = append(cues, Cue{Index: len(cues) + 1, Text: line})
	}
	return cues
}

// ParseTextFile reads a plain-text script, one cue per line, with the same
// encoding fallback as SRT input.
func ParseTextFile(path string) ([]Cue, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read text file: %w", err)
	}
	content, err := decodeSubtitleBytes(raw)
	if err != nil {
		return nil, nil, err
	}
	return ParseText(content), nil, nil
}

func overlapWarnings(cues []Cue) []string {
	var warnings []string
	for i := 1; i < len(cues); i++ {
		prev, cur := cues[i-1], cues[i]
		if prev.EndMS > cur.StartMS {
			warnings = append(warnings, fmt.Sprintf(
				"cue %d overlaps cue %d by %dms", prev.Index, cur.Index, prev.EndMS-cur.StartMS))
		}
	}
	return warnings
}

func truncateForWarning(block string) string {
	const limit = 40
	block = strings.ReplaceAll(block, "\n", " ")
	if len(block) > limit {
		return block[:limit] + "..."
	}
	return block
}

func timestampToMS(h, m, s, ms string) int64 {
	hours, _ := strconv.ParseInt(h, 10, 64)
	minutes, _ := strconv.ParseInt(m, 10, 64)
	seconds, _ := strconv.ParseInt(s, 10, 64)
	millis, _ := strconv.ParseInt(ms, 10, 64)
	return ((hours*60+minutes)*60+seconds)*1000 + millis
}

func formatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600000
	minutes := (ms % 3600000) / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
