package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/leitner/internal/domain"
)

const (
	wordPrefix     = "W:"
	meaningPrefix  = "M:"
	examplePrefix  = "E:"
	languagePrefix = "L:"
	separator      = "---"
)

type state int

const (
	seeking state = iota
	readingWord
	readingMeaning
	readingExample
	readingLanguage
)

var prefixes = []struct {
	prefix string
	state  state
}{
	{wordPrefix, readingWord},
	{meaningPrefix, readingMeaning},
	{examplePrefix, readingExample},
	{languagePrefix, readingLanguage},
}

// ParseFile reads a file from the given path and extracts all words.
func ParseFile(path string) ([]domain.Word, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all words.
//
// A word starts with a "W:" line and may carry "M:" (meaning), "E:" (example
// sentence) and "L:" (language code) fields. Lines without a prefix continue
// the current field. A "---" line or the next "W:" ends the word. Blocks
// without a word are dropped.
func Parse(r io.Reader) ([]domain.Word, error) {
	scanner := bufio.NewScanner(r)
	var words []domain.Word
	var current domain.Word
	var block []string
	currentState := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch currentState {
		case readingWord:
			current.Text = content
		case readingMeaning:
			current.Meaning = content
		case readingExample:
			current.ExampleSentence = content
		case readingLanguage:
			current.LanguageCode = strings.TrimSpace(content)
		}
		block = nil
	}

	finishWord := func() {
		flushBlock()
		if strings.TrimSpace(current.Text) != "" {
			words = append(words, current)
		}
		current = domain.Word{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			finishWord()
			continue
		}

		next, content, ok := matchPrefix(line)
		if !ok {
			if currentState != seeking {
				block = append(block, line)
			}
			continue
		}

		if next == readingWord && currentState != seeking {
			finishWord()
		} else {
			flushBlock()
		}
		currentState = next
		block = append(block, content)
	}

	finishWord()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return trimTrailingBlankLines(words), nil
}

func matchPrefix(line string) (state, string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p.prefix) {
			content := line[len(p.prefix):]
			content = strings.TrimPrefix(content, " ")
			return p.state, content, true
		}
	}
	return seeking, "", false
}

// trimTrailingBlankLines drops the blank lines that separate words in a file
// from the end of each field.
func trimTrailingBlankLines(words []domain.Word) []domain.Word {
	trim := func(s string) string {
		return strings.TrimRight(s, "\n")
	}
	for i := range words {
		words[i].Text = trim(words[i].Text)
		words[i].Meaning = trim(words[i].Meaning)
		words[i].ExampleSentence = trim(words[i].ExampleSentence)
	}
	return words
}
