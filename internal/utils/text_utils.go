package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/jaytaylor/html2text"
	"go.uber.org/zap"
)

// TruncateRunes returns at most limit characters of text. A non-positive
// limit returns text unchanged.
func TruncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	i := 0
	for pos := range text {
		if i == limit {
			return text[:pos]
		}
		i++
	}
	return text
}

// TextProcessor provides utilities for preparing message text for classifiers
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText truncates text to maxChars characters and keeps it valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxChars int) string {
	truncated := TruncateRunes(text, maxChars)
	if len(truncated) != len(text) {
		tp.logger.Debug("Text truncated",
			zap.Int("original_size", len(text)),
			zap.Int("truncated_size", len(truncated)),
			zap.Int("max_chars", maxChars))
	}
	return truncated
}

// SanitizeUTF8 replaces invalid UTF-8 sequences with the replacement character
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	sanitized := strings.ToValidUTF8(text, string(utf8.RuneError))
	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))
	return sanitized
}

// HTMLToText flattens an HTML document to readable text. The raw document is
// returned when conversion fails.
func (tp *TextProcessor) HTMLToText(doc string) string {
	if strings.TrimSpace(doc) == "" {
		return ""
	}
	text, err := html2text.FromString(doc, html2text.Options{OmitLinks: true})
	if err != nil {
		tp.logger.Debug("Failed to convert HTML to text", zap.Error(err))
		return doc
	}
	return text
}

// ClassifierInput builds the text handed to a classifier: the subject, a
// blank line, then the plain body truncated to maxChars, or the flattened HTML
// body when there is no plain text.
func (tp *TextProcessor) ClassifierInput(subject, plain, html string, maxChars int) string {
	body := tp.TruncateText(plain, maxChars)
	if strings.TrimSpace(body) == "" {
		body = tp.TruncateText(tp.HTMLToText(html), maxChars)
	}
	return strings.TrimSpace(subject + "\n\n" + tp.SanitizeUTF8(body))
}
