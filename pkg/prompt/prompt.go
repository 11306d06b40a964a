package prompt

import (
	"fmt"
	"strings"

	"github.com/xhad/pdfalt/internal/models"
)

// Suffix closes every prompt. Models that echo their prompt back are
// cleaned by splitting their output on it.
const Suffix = "Generate a one-liner alternative text that describes the image in a meaningful way."

const template = `You are given an image with a title and context. The image is named: %s.
Title: %s
Text before the image: %s
Text after the image: %s

` + Suffix

type BuilderConfig struct {
	// MaxContextChars bounds the text before and text after separately.
	// Zero means unbounded.
	MaxContextChars int
}

type Builder struct {
	config BuilderConfig
}

func NewWithConfig(config BuilderConfig) Builder {
	if config.MaxContextChars < 0 {
		config.MaxContextChars = 0
	}
	return Builder{config: config}
}

// Build renders the prompt for one record. imagePath is how the image is
// named to the model; it defaults to the record's image name.
func (b Builder) Build(record models.ContextRecord, imagePath string) string {
	if imagePath == "" {
		imagePath = record.ImageName
	}
	before := b.clipTail(cleanText(record.TextBefore))
	after := b.clipHead(cleanText(record.TextAfter))
	return fmt.Sprintf(template, imagePath, cleanText(record.Title), before, after)
}

// StripEcho removes an echoed prompt from a model response, keeping only the
// text after the last occurrence of Suffix.
func StripEcho(response string) string {
	parts := strings.Split(response, Suffix)
	return strings.TrimSpace(parts[len(parts)-1])
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// clipTail keeps the end of text before an image, the part nearest to it.
// The limit counts runes.
func (b Builder) clipTail(text string) string {
	limit := b.config.MaxContextChars
	runes := []rune(text)
	if limit == 0 || len(runes) <= limit {
		return text
	}
	tail := runes[len(runes)-limit:]
	// Do not start in the middle of a word.
	if idx := indexRune(tail, ' '); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return string(tail)
}

// clipHead keeps the start of text after an image.
func (b Builder) clipHead(text string) string {
	limit := b.config.MaxContextChars
	runes := []rune(text)
	if limit == 0 || len(runes) <= limit {
		return text
	}
	head := runes[:limit]
	if idx := lastIndexRune(head, ' '); idx > 0 {
		head = head[:idx]
	}
	return string(head)
}

func indexRune(runes []rune, r rune) int {
	for i, c := range runes {
		if c == r {
			return i
		}
	}
	return -1
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
