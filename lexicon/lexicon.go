package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Errors returned while loading a lexicon.
var (
	ErrRead  = errors.New("failed to read lexicon")
	ErrParse = errors.New("failed to parse lexicon")
)

// ParseError describes a lexicon line that has no numeric score.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lexicon line %d (%q): %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("lexicon line %d (%q): missing score", e.Line, e.Text)
}

// Is reports ParseError as ErrParse for errors.Is.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Lexicon maps case-sensitive words to sentiment weights. A Lexicon is never
// modified after construction.
type Lexicon struct {
	weights map[string]float64
}

// New builds a lexicon from a copy of the given weights.
func New(weights map[string]float64) *Lexicon {
	copied := make(map[string]float64, len(weights))
	for word, weight := range weights {
		copied[word] = weight
	}
	return &Lexicon{weights: copied}
}

// Weight returns the weight of word and whether the word is present.
func (l *Lexicon) Weight(word string) (float64, bool) {
	if l == nil {
		return 0, false
	}
	weight, ok := l.weights[word]
	return weight, ok
}

// Len returns the number of words in the lexicon.
func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return len(l.weights)
}

// Load reads a lexicon file from disk.
func Load(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrRead, path, err)
	}
	defer f.Close()

	lex, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return lex, nil
}

// Parse reads a word-score table, one entry per line. The word is the first
// tab-separated field and the score is the leading numeric token of the
// second field; anything after the score is ignored. Lines without a tab are
// split on whitespace instead. Blank lines are skipped and a repeated word
// keeps its last score.
func Parse(r io.Reader) (*Lexicon, error) {
	weights := make(map[string]float64)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		word, weight, err := parseLine(line)
		if err != nil {
			return nil, &ParseError{Line: lineNum, Text: line, Err: err}
		}
		weights[word] = weight
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	return &Lexicon{weights: weights}, nil
}

func parseLine(line string) (string, float64, error) {
	var word, rest string
	if before, after, found := strings.Cut(line, "\t"); found {
		word, rest = before, after
	} else {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return "", 0, errors.New("missing score")
		}
		word, rest = fields[0], strings.Join(fields[1:], " ")
	}

	tokens := strings.Fields(rest)
	if word == "" || len(tokens) == 0 {
		return "", 0, errors.New("missing score")
	}

	weight, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid score %q", tokens[0])
	}

	return word, weight, nil
}
