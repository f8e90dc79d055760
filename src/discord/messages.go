package discord

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxDiscordMessageLen = 2000
	SafeChunkLen         = 1900

	continuedMarker = "\n*(continued...)*"
)

// ChunkMessage splits text into Discord-sized messages. It breaks on blank
// lines first, then sentence ends, then words; a single word longer than a
// chunk is cut on rune boundaries. Every chunk but the last carries a
// continuation marker.
func ChunkMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= MaxDiscordMessageLen {
		return []string{text}
	}

	type piece struct {
		text string
		sep  string
	}
	var pieces []piece
	for _, paragraph := range strings.Split(text, "\n\n") {
		if runeLen(paragraph) <= SafeChunkLen {
			pieces = append(pieces, piece{paragraph, "\n\n"})
			continue
		}
		sep := "\n\n"
		for _, sentence := range splitBySentences(paragraph) {
			parts := []string{sentence}
			if runeLen(sentence) > SafeChunkLen {
				parts = splitByWords(sentence)
			}
			for _, p := range parts {
				pieces = append(pieces, piece{p, sep})
				sep = " "
			}
		}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	for _, p := range pieces {
		sep := p.sep
		if current.Len() == 0 {
			sep = ""
		}
		if current.Len() > 0 && runeLen(current.String())+len(sep)+runeLen(p.text) > SafeChunkLen {
			chunks = append(chunks, current.String())
			current.Reset()
			sep = ""
		}
		current.WriteString(sep)
		current.WriteString(p.text)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	for i := 0; i < len(chunks)-1; i++ {
		chunks[i] += continuedMarker
	}
	return chunks
}

func splitBySentences(text string) []string {
	var (
		out     []string
		current strings.Builder
	)
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func splitByWords(text string) []string {
	var (
		out     []string
		current strings.Builder
	)
	for _, word := range strings.Fields(text) {
		for runeLen(word) > SafeChunkLen {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			runes := []rune(word)
			out = append(out, string(runes[:SafeChunkLen]))
			word = string(runes[SafeChunkLen:])
		}
		if current.Len() > 0 && runeLen(current.String())+1+runeLen(word) > SafeChunkLen {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
