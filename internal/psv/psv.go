// Package psv converts text extracted from a PDF into the normalised
// sentence-per-line form used for downstream document similarity: only ascii
// word characters are kept, symbols, numbers and single letters are removed,
// and sentences are separated by newlines. The pipeline is a port of an old
// Perl tidy-text routine and is deterministic and side-effect-free.
package psv

import (
	"regexp"
	"strings"
)

const maxRefsFraction = 0.5

var (
	lineTerminators = regexp.MustCompile(`[\x0a-\x0d]+`)
	refsBoundary    = regexp.MustCompile(`(?i)^[^a-zA-Z]*(reference[s]?|bibliography)[\W]*$`)

	allDigits        = regexp.MustCompile(`^\d+$`)
	affiliationStart = regexp.MustCompile(`(?i)^(university|institute)`)

	expandFigure   = regexp.MustCompile(`(?i)Fig[s]?[\.]?\s`)
	expandEquation = regexp.MustCompile(`(?i)Eq[s]?[\.]?\s`)
	expandSection  = regexp.MustCompile(`(?i)Sect[s]?[\.]?\s`)
	expandRef      = regexp.MustCompile(`(?i)Ref[s]?[\.]?\s`)
	stripProf      = regexp.MustCompile(`(?i)Prof\.`)
	stripDr        = regexp.MustCompile(`(?i)Dr\.`)

	nonWordSymbols = regexp.MustCompile(`[^\.\w ]`)
	fractionDigits = regexp.MustCompile(`\d+[\.]?\d+/`)
	anyDigit       = regexp.MustCompile(`\d`)
	abbrevThree    = regexp.MustCompile(`\s\w\.\w\.\w\.\s`)
	abbrevTwo      = regexp.MustCompile(`\s\w\.\w\.\s`)
	abbrevOne      = regexp.MustCompile(`\s\w\.\s`)
	singleLetter   = regexp.MustCompile(`\s[a-zA-Z]\s`)
	singleTrailing = regexp.MustCompile(`\s[a-zA-Z]\.`)
	anySpaces      = regexp.MustCompile(`\s+`)
	sentenceEnd    = regexp.MustCompile(`\.\s`)
	nonWord        = regexp.MustCompile(`\W`)
	wordStart      = regexp.MustCompile(`^\w`)
)

// NormalizeTextPSV normalises text to its PSV form, discarding the
// references section.
func NormalizeTextPSV(text string) string {
	body, _ := ProcessText(text)
	return strings.ReplaceAll(body, "\n", " ")
}

// ProcessText converts raw article text into a (body, references) pair of
// cleaned, newline-separated sentences.
func ProcessText(text string) (string, string) {
	text = recoverAccents(text)

	raw := lineTerminators.Split(text, -1)
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = l + "\n"
	}

	body, refs := splitOnReferences(lines)
	return strings.Join(tidyTxtFromPDF(body), "\n"),
		strings.Join(tidyTxtFromPDF(refs), "\n")
}

// splitOnReferences locates the start of the references by the last line
// matching a "References"/"Bibliography" heading. If the resulting section
// would exceed half of all lines the split is suppressed.
func splitOnReferences(lines []string) ([]string, []string) {
	lastRefs := 0
	for i, line := range lines {
		if refsBoundary.MatchString(line) {
			lastRefs = i + 1
		}
	}
	if n := len(lines); n > 0 && lastRefs > 0 {
		if 1.0-float64(lastRefs)/float64(n) > maxRefsFraction {
			lastRefs = 0
		}
	}
	if lastRefs == 0 {
		return lines, nil
	}
	return lines[:lastRefs-1], lines[lastRefs-1:]
}

// tidyTxtFromPDF cleans a group of lines: removes boilerplate, joins broken
// lines, expands abbreviations, strips symbols, numbers and single letters,
// and splits the result into lowercase sentences.
func tidyTxtFromPDF(lines []string) []string {
	lines = removeKeywords(lines)
	lines = flattenWhitespace(lines)
	lines = joinBrokenLines(lines)

	for i := range lines {
		line := expandWords(lines[i])
		line = removeSymbols(line)
		line = removeNumbers(line)
		line = removeAbbrev(line)
		line = removeSingleLetters(line)
		lines[i] = collapseSpaces(line)
	}

	lines = flattenWhitespace(lines)
	lines = joinBrokenLines(lines)

	return cleanSentences(splitSentences(lines))
}

// removeKeywords drops boilerplate lines: anything starting with "arxiv",
// editorial placeholders, and affiliation lines directly after a bare
// page-number line.
func removeKeywords(lines []string) []string {
	out := make([]string, 0, len(lines))
	prev := ""
	for _, line := range lines {
		prevline := prev
		prev = line

		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "arxiv"):
			continue
		case strings.Contains(line, "will be inserted by hand later"):
			continue
		case strings.Contains(line, "was prepared with the aas"):
			continue
		case allDigits.MatchString(strings.TrimRight(prevline, "\n")) &&
			affiliationStart.MatchString(line):
			continue
		}
		out = append(out, line)
	}
	return out
}

func flattenWhitespace(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.Map(func(r rune) rune {
			switch r {
			case '\n', '\r', '\f', '\t':
				return ' '
			}
			return r
		}, line)
	}
	return out
}

// joinBrokenLines repairs hyphenated continuations and false line breaks: a
// line beginning lowercase is glued to the previous line unless that line
// ended a sentence.
func joinBrokenLines(lines []string) []string {
	out := []string{""}
	prevline := ""
	for _, line := range lines {
		line = strings.TrimSuffix(line, "- ")
		first := ""
		if line != "" {
			first = line[:1]
		}
		if first >= "a" && first <= "z" && !strings.HasSuffix(prevline, ". ") {
			out[len(out)-1] += line
		} else {
			out = append(out, line)
		}
		prevline = line
	}
	return out
}

// expandWords expands common abbreviations (Fig., Eq., Sect., Ref.) to full
// words, and strips the period from Prof. and Dr. so that they do not break
// sentence splitting.
func expandWords(line string) string {
	line = expandFigure.ReplaceAllString(line, "Figure ")
	line = expandEquation.ReplaceAllString(line, "Equation ")
	line = expandSection.ReplaceAllString(line, "Section ")
	line = expandRef.ReplaceAllString(line, "Reference ")
	line = stripProf.ReplaceAllString(line, "Prof")
	line = stripDr.ReplaceAllString(line, "Dr")
	return line
}

func removeSymbols(line string) string {
	line = nonWordSymbols.ReplaceAllString(line, " ")
	return strings.ReplaceAll(line, "_", " ")
}

func removeNumbers(line string) string {
	line = fractionDigits.ReplaceAllString(line, " ")
	return anyDigit.ReplaceAllString(line, " ")
}

// removeAbbrev drops abbreviation-shaped tokens (U.S.A., U.S., e.) that
// would otherwise confuse sentence separation.
func removeAbbrev(line string) string {
	line = abbrevThree.ReplaceAllString(line, " ")
	line = abbrevTwo.ReplaceAllString(line, " ")
	return abbrevOne.ReplaceAllString(line, " ")
}

func removeSingleLetters(line string) string {
	line = singleLetter.ReplaceAllString(line, " ")
	line = singleLetter.ReplaceAllString(line, " ")
	return singleTrailing.ReplaceAllString(line, ".")
}

func collapseSpaces(line string) string {
	line = anySpaces.ReplaceAllString(line, " ")
	return strings.TrimLeft(line, " ")
}

func splitSentences(lines []string) []string {
	var out []string
	for _, line := range lines {
		out = append(out, sentenceEnd.Split(line, -1)...)
	}
	return out
}

// cleanSentences lowercases each sentence, replaces any remaining non-word
// characters with spaces, and drops sentences of three characters or fewer.
func cleanSentences(lines []string) []string {
	var out []string
	for _, line := range lines {
		if !wordStart.MatchString(line) {
			continue
		}
		line = nonWord.ReplaceAllString(line, " ")
		line = collapseSpaces(line)
		line = strings.Trim(line, " ")
		if len(line) <= 3 {
			continue
		}
		out = append(out, strings.ToLower(line))
	}
	return out
}
