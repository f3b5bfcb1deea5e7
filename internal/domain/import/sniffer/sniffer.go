// Package sniffer detects the text encoding, field delimiter and header row of
// CBHPM table exports whose layout is not known in advance.
package sniffer

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/encoding/charmap"
)

// Encoding names the text encoding chosen for a file.
type Encoding string

const (
	UTF8 Encoding = "utf-8"
	// Latin1 is decoded as Windows-1252, the Latin-1 superset Excel writes.
	Latin1 Encoding = "latin-1"
)

const (
	// SampleSize is the prefix of the upload inspected by Sniff.
	SampleSize = 2048
	// DefaultDelimiter is used when detection is inconclusive. Regional
	// exports of the table are semicolon separated.
	DefaultDelimiter = ';'

	// maxHeaderScan bounds how many records HeaderRow looks at.
	maxHeaderScan = 20
	// consistencyThreshold is the share of sampled lines that must carry the
	// same delimiter count for the delimiter to be accepted.
	consistencyThreshold = 0.9
)

// candidateDelimiters in the order ties are reported; ties still resolve to
// DefaultDelimiter.
var candidateDelimiters = []rune{';', '\t', ',', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Header words seen in CBHPM exports across editions, lower case.
var headerKeywords = []string{
	"código", "codigo", "cód", "cod.",
	"descrição", "descricao", "procedimento",
	"porte", "uco", "custo operacional",
	"filme", "m²", "incidência", "auxiliares",
}

var (
	// Matcher.Match keeps per-call state, so calls are serialized.
	matcherMu     sync.Mutex
	headerMatcher = newHeaderMatcher()
)

func newHeaderMatcher() *ahocorasick.Matcher {
	patterns := make([][]byte, len(headerKeywords))
	for i, kw := range headerKeywords {
		patterns[i] = []byte(kw)
	}
	return ahocorasick.NewMatcher(patterns)
}

// Dialect is the detected encoding and delimiter of a CSV upload.
type Dialect struct {
	Encoding  Encoding
	Delimiter rune
}

// Sniff inspects the first SampleSize bytes of raw and reports how to read it.
// It never fails: anything it cannot decide falls back to UTF-8 and ';'.
func Sniff(raw []byte) Dialect {
	truncated := len(raw) > SampleSize
	sample := raw
	if truncated {
		sample = raw[:SampleSize]
	}
	sample = bytes.TrimPrefix(sample, utf8BOM)

	enc := Latin1
	if validUTF8Sample(sample, truncated) {
		enc = UTF8
	}

	text := decode(sample, enc)
	return Dialect{
		Encoding:  enc,
		Delimiter: detectDelimiter(sampleLines(text, truncated)),
	}
}

// Decode converts the whole upload to text using the sniffed encoding. A file
// whose sample looked like UTF-8 but contains invalid sequences further on is
// read as Latin-1 instead.
func Decode(raw []byte, d Dialect) string {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if d.Encoding == UTF8 && utf8.Valid(raw) {
		return string(raw)
	}
	return decode(raw, Latin1)
}

// HeaderRow returns the index of the table header among the first records.
// The first record accepted by resolves wins. When none is accepted (or
// resolves is nil) each record is scored by the distinct header keywords it
// contains, and record 0 is kept unless a later one scores higher with at
// least two keywords.
func HeaderRow(records [][]string, resolves func([]string) bool) int {
	if len(records) > maxHeaderScan {
		records = records[:maxHeaderScan]
	}
	if resolves != nil {
		for i, record := range records {
			if resolves(record) {
				return i
			}
		}
	}

	best := 0
	bestScore := -1
	for i, record := range records {
		score := headerScore(record)
		if i == 0 {
			bestScore = score
			continue
		}
		if score >= 2 && score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

func headerScore(record []string) int {
	line := strings.ToLower(strings.Join(record, " "))
	if strings.TrimSpace(line) == "" {
		return 0
	}
	matcherMu.Lock()
	defer matcherMu.Unlock()
	return len(headerMatcher.Match([]byte(line)))
}

func decode(b []byte, enc Encoding) string {
	if enc == UTF8 {
		return string(b)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		// Windows-1252 maps every byte; keep the raw bytes if that ever changes.
		return string(b)
	}
	return string(out)
}

// validUTF8Sample accepts a sample whose only defect is a multi-byte rune cut
// at the sample boundary.
func validUTF8Sample(b []byte, truncated bool) bool {
	if utf8.Valid(b) {
		return true
	}
	if !truncated {
		return false
	}
	for cut := 1; cut < utf8.UTFMax && cut < len(b); cut++ {
		head, tail := b[:len(b)-cut], b[len(b)-cut:]
		if utf8.Valid(head) && utf8.RuneStart(tail[0]) && !utf8.FullRune(tail) {
			return true
		}
	}
	return false
}

func sampleLines(text string, truncated bool) []string {
	raw := strings.Split(text, "\n")
	if truncated && len(raw) > 1 {
		raw = raw[:len(raw)-1]
	}
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = cleanLine(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func cleanLine(line string) string {
	return strings.TrimSpace(strings.TrimRight(line, "\r"))
}

// detectDelimiter picks the candidate whose per-line count is the same on
// (nearly) every sampled line, preferring higher counts.
func detectDelimiter(lines []string) rune {
	if len(lines) == 0 {
		return DefaultDelimiter
	}

	best := rune(0)
	bestCount := 0
	tie := false
	for _, d := range candidateDelimiters {
		count, ok := consistentCount(lines, d)
		if !ok {
			continue
		}
		switch {
		case count > bestCount:
			best, bestCount, tie = d, count, false
		case count == bestCount:
			tie = true
		}
	}

	if best == 0 || tie {
		return DefaultDelimiter
	}
	return best
}

// consistentCount returns the modal per-line count of d and whether enough
// lines share it.
func consistentCount(lines []string, d rune) (int, bool) {
	freq := make(map[int]int)
	for _, line := range lines {
		freq[countOutsideQuotes(line, d)]++
	}

	mode, modeLines := 0, 0
	for count, n := range freq {
		if count == 0 {
			continue
		}
		if n > modeLines || (n == modeLines && count > mode) {
			mode, modeLines = count, n
		}
	}
	if mode == 0 {
		return 0, false
	}
	return mode, float64(modeLines)/float64(len(lines)) >= consistencyThreshold
}

func countOutsideQuotes(line string, d rune) int {
	count := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == d && !inQuotes:
			count++
		}
	}
	return count
}
