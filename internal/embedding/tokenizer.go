package embedding

import (
	"strings"
	"unicode"
)

// CLIP text encoder special tokens and sizes.
const (
	clipStartToken    = 49406
	clipEndToken      = 49407
	clipVocabSize     = 49408
	clipContextLength = 77
	// ids below this are byte-level tokens in the CLIP vocabulary; hashed words stay above it
	clipFirstWordToken = 256
)

// Tokenizer produces token IDs and an attention mask for a text encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

// SimpleTokenizer is a CLIP-shaped tokenizer with hash-based word ids. It keeps the
// framing the text encoder expects (start token, end token, zero padding, lowercase
// words split on punctuation) without shipping the BPE vocabulary.
type SimpleTokenizer struct{}

// Tokenize lowercases and splits text, and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens <= 2 {
		maxTokens = clipContextLength
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)

	inputIDs[0] = clipStartToken
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(clipFirstWordToken + HashString(word)%(clipStartToken-clipFirstWordToken))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = clipEndToken
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

// SplitWords splits text into words and single punctuation marks.
func SplitWords(text string) []string {
	var words []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			word.WriteRune(r)
		default:
			flush()
			words = append(words, string(r))
		}
	}
	flush()
	return words
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 { // -MinInt overflows back to itself
		h = 0
	}
	return h
}
