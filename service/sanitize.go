package service

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"lms-agent/model"
)

const (
	maxSanitizePasses = 8
	// maxDecodeRounds bounds entity decoding; every round that changes the text
	// consumes at least one entity, and no message is long enough to need more.
	maxDecodeRounds = 64
)

var (
	strictPolicy  = bluemonday.StrictPolicy()
	angleBrackets = strings.NewReplacer("<", "", ">", "")
)

// Sanitize strips markup and control characters and normalises whitespace.
// Entities are decoded to a fixed point before markup is stripped, so nested
// encodings cannot survive and Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(s string) string {
	out := s
	for i := 0; i < maxSanitizePasses; i++ {
		next := sanitizeOnce(out)
		if next == out {
			return out
		}
		out = next
	}
	// Still changing means entities spliced with markup. Text without '&', '<'
	// or '>' has nothing left to decode or strip, so this pass is final.
	return sanitizeOnce(strings.ReplaceAll(out, "&", ""))
}

func sanitizeOnce(s string) string {
	s = stripControl(s)
	s = decodeEntities(s)
	s = strictPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = angleBrackets.Replace(s)
	s = stripControl(s)
	return strings.Join(strings.Fields(s), " ")
}

// decodeEntities unescapes HTML entities until the text stops changing.
func decodeEntities(s string) string {
	for i := 0; i < maxDecodeRounds; i++ {
		next := html.UnescapeString(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return ' '
		case r == unicode.ReplacementChar:
			return -1
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

type threatPattern struct {
	kind model.ThreatKind
	re   *regexp.Regexp
}

var threatPatterns = []threatPattern{
	{model.ThreatXSS, regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe|object|embed|svg|img|body|style|link|meta|form)\b`)},
	{model.ThreatXSS, regexp.MustCompile(`(?i)\b(javascript|vbscript)\s*:`)},
	{model.ThreatXSS, regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
	{model.ThreatXSS, regexp.MustCompile(`(?i)\bon(load|error|click|dblclick|mouse\w*|focus|blur|submit|change|key\w*|input)\s*=`)},
	{model.ThreatXSS, regexp.MustCompile(`(?i)\b(eval|expression)\s*\(`)},

	{model.ThreatSQLInjection, regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)},
	// DDL and DML keywords only count next to statement syntax, so course titles
	// like "Drop Table Tennis" or "delete from my plan" stay plain text.
	{model.ThreatSQLInjection, regexp.MustCompile(`(?i)(;|')\s*(drop|truncate|alter|delete|insert)\b`)},
	{model.ThreatSQLInjection, regexp.MustCompile(`(?i)\b(drop|truncate|alter)\s+(table|database|schema)\s+(if\s+exists\s+)?[\w.\x60"\[\]]+\s*(;|--)`)},
	{model.ThreatSQLInjection, regexp.MustCompile(`(?i)\binsert\s+into\s+[\w.]+\s*(\(|\bvalues\b|\bselect\b)`)},
	{model.ThreatSQLInjection, regexp.MustCompile(`(?i)\bdelete\s+from\s+[\w.]+\s*(;|--|\bwhere\b)`)},
	{model.ThreatSQLInjection, regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\w+'?\s*=\s*'?\w+`)},
	{model.ThreatSQLInjection, regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`)},
	{model.ThreatSQLInjection, regexp.MustCompile(`;\s*--|'\s*--|/\*[\s\S]*?\*/`)},
	{model.ThreatSQLInjection, regexp.MustCompile(`(?i)\bexec(\s+|\s*\()(xp_|sp_)\w+`)},

	{model.ThreatPathTraversal, regexp.MustCompile(`\.\.[/\\]`)},
	{model.ThreatPathTraversal, regexp.MustCompile(`(?i)(%2e%2e|\.\.)(%2f|%5c)`)},
	{model.ThreatPathTraversal, regexp.MustCompile(`(?i)%2e%2e[/\\]`)},
	{model.ThreatPathTraversal, regexp.MustCompile(`(?i)/etc/(passwd|shadow)\b|\bc:\\windows\\`)},
}

// detectThreats scans the raw text and its fully entity-decoded form.
func detectThreats(raw string, maxRun int) []model.ThreatKind {
	variants := []string{raw}
	if decoded := decodeEntities(raw); decoded != raw {
		variants = append(variants, decoded)
	}

	seen := make(map[model.ThreatKind]bool)
	var found []model.ThreatKind
	add := func(k model.ThreatKind) {
		if !seen[k] {
			seen[k] = true
			found = append(found, k)
		}
	}

	for _, p := range threatPatterns {
		if seen[p.kind] {
			continue
		}
		for _, v := range variants {
			if p.re.MatchString(v) {
				add(p.kind)
				break
			}
		}
	}
	if longestRun(raw) > maxRun {
		add(model.ThreatFlooding)
	}
	return found
}

// longestRun returns the length of the longest run of one repeated non-space rune.
func longestRun(s string) int {
	longest, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if r == prev && !unicode.IsSpace(r) {
			run++
		} else {
			run = 1
		}
		prev = r
		if run > longest {
			longest = run
		}
	}
	return longest
}
