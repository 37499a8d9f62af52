package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/insightai/internal/model"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
)

// Splitter cuts documents into chunks of at most maxSize runes, preferring
// to cut on the earliest separator of its priority list.
type Splitter struct {
	maxSize    int
	separators []string
	trailing   []string
}

func New(maxSize int, separators []string) (*Splitter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunk max size must be positive, got %d", maxSize)
	}
	seps := make([]string, 0, len(separators))
	trailing := make([]string, 0, len(separators))
	for _, sep := range separators {
		if sep == "" {
			return nil, fmt.Errorf("chunk separator must not be empty")
		}
		seps = append(seps, sep)
		if p := strings.TrimSpace(sep); p != "" {
			trailing = append(trailing, p)
		}
	}
	return &Splitter{maxSize: maxSize, separators: seps, trailing: trailing}, nil
}

// Chunk splits doc in a single call. It is the functional form of Splitter.Chunk.
func Chunk(doc model.Document, maxSize int, separators []string) ([]model.Chunk, error) {
	s, err := New(maxSize, separators)
	if err != nil {
		return nil, err
	}
	return s.Chunk(doc, 0)
}

func (s *Splitter) MaxSize() int {
	return s.maxSize
}

// Chunk returns the ordered chunks of doc. order is the document's position
// within the current cycle and is copied onto every chunk.
func (s *Splitter) Chunk(doc model.Document, order int) ([]model.Chunk, error) {
	if !utf8.ValidString(doc.Content) || strings.ContainsRune(doc.Content, 0) {
		return nil, fmt.Errorf("%w: document %q is not valid text", appErr.ErrChunking, doc.Source)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}
	pieces := s.split(doc.Content, s.separators)
	chunks := make([]model.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		text := s.finish(piece)
		if text == "" {
			continue
		}
		chunks = append(chunks, model.Chunk{
			Text:          text,
			Source:        doc.Source,
			SequenceIndex: len(chunks),
			DocumentOrder: order,
		})
	}
	return chunks, nil
}

func (s *Splitter) split(text string, seps []string) []string {
	if utf8.RuneCountInString(text) <= s.maxSize {
		return []string{text}
	}
	at := -1
	for i, sep := range seps {
		if strings.Contains(text, sep) {
			at = i
			break
		}
	}
	if at < 0 {
		return truncate(text, s.maxSize)
	}
	sep, rest := seps[at], seps[at+1:]

	var out []string
	var buf string
	open := false
	flush := func() {
		if open {
			out = append(out, buf)
		}
		buf, open = "", false
	}
	for _, part := range strings.Split(text, sep) {
		blank := strings.TrimSpace(part) == ""
		if utf8.RuneCountInString(part) > s.maxSize {
			flush()
			out = append(out, s.split(part, rest)...)
			continue
		}
		if !open {
			if !blank {
				buf, open = part, true
			}
			continue
		}
		merged := buf + sep + part
		if utf8.RuneCountInString(merged) <= s.maxSize {
			buf = merged
			continue
		}
		flush()
		if !blank {
			buf, open = part, true
		}
	}
	flush()
	return out
}

// finish trims whitespace and one trailing separator mark, so "great." and
// "great" produce the same chunk.
func (s *Splitter) finish(piece string) string {
	text := strings.TrimSpace(piece)
	for _, mark := range s.trailing {
		if strings.HasSuffix(text, mark) {
			text = strings.TrimSpace(strings.TrimSuffix(text, mark))
			break
		}
	}
	return text
}

func truncate(text string, size int) []string {
	var out []string
	for text != "" {
		cut := 0
		for n := 0; n < size && cut < len(text); n++ {
			_, w := utf8.DecodeRuneInString(text[cut:])
			cut += w
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}
