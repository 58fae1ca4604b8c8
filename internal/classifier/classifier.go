// Package classifier maps IVR transcript text to call-progress signals.
//
// Every function is pure and safe for concurrent use. Blank or unmatched
// text yields negative results, never an error.
package classifier

import (
	"regexp"
	"sort"
	"strings"
)

// Signal names a call-progress signal. Used as a metrics label.
type Signal string

const (
	SignalHuman       Signal = "human"
	SignalHold        Signal = "hold"
	SignalMenuFailure Signal = "menu_failure"
	SignalMenu        Signal = "menu"
	SignalSilence     Signal = "silence"
	SignalNone        Signal = "none"
)

// digitWord matches a spoken or written single digit.
const digitWord = `(\d|zero|oh|one|two|three|four|five|six|seven|eight|nine)`

var wordDigits = map[string]string{
	"zero":  "0",
	"oh":    "0",
	"one":   "1",
	"two":   "2",
	"three": "3",
	"four":  "4",
	"five":  "5",
	"six":   "6",
	"seven": "7",
	"eight": "8",
	"nine":  "9",
}

// digitRank orders digits by how likely they route to an operator or the
// primary service. Lower is better; 8 and 9 share the last rank.
var digitRank = map[string]int{
	"0": 0,
	"2": 1,
	"1": 2,
	"3": 3,
	"4": 4,
	"5": 5,
	"6": 6,
	"7": 7,
	"8": 8,
	"9": 8,
}

var humanPatterns = compileAll(
	`\b(hi|hello|hey)\b`,
	`\bgood (morning|afternoon|evening)\b`,
	`\bthis is\b`,
	`\bmy name is\b`,
	`\bspeaking\b`,
	`\bhow (can|may) i (help|assist)\b`,
	`\bwhat can i do for you\b`,
	`\bthank you for calling\b`,
	`\bwho am i speaking (with|to)\b`,
)

// ivrVetoPatterns capture phrasing a human agent would not use. A match
// overrides any human pattern.
// Gaps are bounded by the sentence, not by length.
var ivrVetoPatterns = compileAll(
	`\bpress\b[^.?!]*?\b(for|to)\b`,
	`\bfor\b[^.?!]*?\bpress\b`,
	`\bto\b[^.?!]*?,?\s*press\b`,
	`\bpress\s+(?:the\s+)?(?:number\s+)?`+digitWord+`\b`,
	`\byou have reached\b`,
	`\bplease listen carefully\b`,
	`\byour call is (very )?important\b`,
	`\bplease hold\b`,
	`\bstay on the line\b`,
	`\bon hold\b`,
	`\b(recorded|monitored) for quality\b`,
	`\bquality (assurance|purposes)\b`,
	`\bmenu options have (recently )?changed\b`,
	`\bpara espa(n|ñ)ol\b`,
)

var menuFailurePatterns = compileAll(
	`\bdidn['’]?t get your (response|input|selection)\b`,
	`\b(did not|didn['’]?t) (hear|catch|receive)\b`,
	`\bnot a valid (option|selection|entry|choice)\b`,
	`\binvalid (option|selection|entry)\b`,
	`\btry again\b`,
	`\b(did not|didn['’]?t) recogni[sz]e\b`,
	`\b(did not|didn['’]?t) understand\b`,
)

var holdPatterns = compileAll(
	`\bplease hold\b`,
	`\btransferring\b`,
	`\bconnecting you\b`,
	`\btransfer your call\b`,
	`\bplease wait while\b`,
)

var menuPatterns = compileAll(
	`\bpress\b`,
	`\bfor\b`,
	`\boption\b`,
	`\bmenu\b`,
	`\bto speak (with|to)\b`,
)

// digitPatterns are the three extraction shapes; the first capture group is
// always the digit.
var digitPatterns = compileAll(
	`\bpress\s+(?:the\s+)?(?:number\s+)?`+digitWord+`\b`,
	`\b(?:for|to)\s+[^,.;!?]+?,?\s+press\s+`+digitWord+`\b`,
	`\b(?:option|number)\s+`+digitWord+`\b`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// normalize lowercases and collapses whitespace.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// DetectHuman reports whether text sounds like a live person and contains no
// IVR phrasing.
func DetectHuman(text string) bool {
	t := normalize(text)
	if t == "" {
		return false
	}
	if matchAny(ivrVetoPatterns, t) {
		return false
	}
	return matchAny(humanPatterns, t)
}

// DetectMenuFailure reports error and re-prompt phrasing.
func DetectMenuFailure(text string) bool {
	return matchAny(menuFailurePatterns, normalize(text))
}

// DetectHold reports hold or transfer phrasing.
func DetectHold(text string) bool {
	return matchAny(holdPatterns, normalize(text))
}

// DetectMenu reports generic menu phrasing.
func DetectMenu(text string) bool {
	return matchAny(menuPatterns, normalize(text))
}

// DetectSilence reports a blank transcript.
func DetectSilence(text string) bool {
	return strings.TrimSpace(text) == ""
}

// ExtractDigits returns the digits offered in text, deduplicated, in order of
// first appearance.
func ExtractDigits(text string) []string {
	t := normalize(text)
	if t == "" {
		return []string{}
	}

	type hit struct {
		pos   int
		digit string
	}
	var hits []hit
	for _, p := range digitPatterns {
		for _, m := range p.FindAllStringSubmatchIndex(t, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			hits = append(hits, hit{pos: m[2], digit: toDigit(t[m[2]:m[3]])})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	digits := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if h.digit == "" || seen[h.digit] {
			continue
		}
		seen[h.digit] = true
		digits = append(digits, h.digit)
	}
	return digits
}

func toDigit(word string) string {
	if d, ok := wordDigits[word]; ok {
		return d
	}
	if len(word) == 1 && word[0] >= '0' && word[0] <= '9' {
		return word
	}
	return ""
}

// SelectBestDigit picks the highest-ranked candidate. The rank is fixed, so
// position in the transcript never matters.
func SelectBestDigit(candidates []string) (string, bool) {
	best := ""
	bestRank := len(digitRank) + 1
	for _, c := range candidates {
		r, ok := digitRank[c]
		if !ok {
			continue
		}
		// 8 and 9 tie; the lower numeral wins.
		if r < bestRank || (r == bestRank && c < best) {
			best, bestRank = c, r
		}
	}
	return best, best != ""
}

// Signals is the full classification of one transcript. The booleans are
// independent; the session engine imposes priority.
type Signals struct {
	Human       bool
	Hold        bool
	MenuFailure bool
	Menu        bool
	Silence     bool
	Digits      []string
}

// Classify computes every signal for text.
func Classify(text string) Signals {
	return Signals{
		Human:       DetectHuman(text),
		Hold:        DetectHold(text),
		MenuFailure: DetectMenuFailure(text),
		Menu:        DetectMenu(text),
		Silence:     DetectSilence(text),
		Digits:      ExtractDigits(text),
	}
}

// Primary returns the signal that wins under decision priority.
func (s Signals) Primary() Signal {
	switch {
	case s.Human:
		return SignalHuman
	case s.Hold:
		return SignalHold
	case s.MenuFailure:
		return SignalMenuFailure
	case s.Menu:
		return SignalMenu
	case s.Silence:
		return SignalSilence
	default:
		return SignalNone
	}
}
