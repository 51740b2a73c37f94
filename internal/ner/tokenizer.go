package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Special tokens every BERT vocabulary carries
const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenPAD = "[PAD]"
	tokenUNK = "[UNK]"

	subwordPrefix        = "##"
	maxInputRunesPerWord = 100
)

// TokenizedInput is one sequence ready for token classification. Offsets
// holds the byte span of every token in the original text; special tokens
// have the span {-1, -1}.
type TokenizedInput struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Offsets       [][2]int
	WordStart     []bool
	Truncated     bool
}

// Len returns the sequence length including special tokens
func (t *TokenizedInput) Len() int { return len(t.InputIDs) }

// Tokenizer is a WordPiece tokenizer over a BERT vocab.txt
type Tokenizer struct {
	vocab     map[string]int64
	maxLength int
	lowercase bool

	clsID, sepID, padID, unkID int64
}

// LoadVocab reads a vocab.txt file: one token per line, id = line number
func LoadVocab(path string) (map[string]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer file.Close()

	vocab := make(map[string]int64, 32000)
	scanner := bufio.NewScanner(file)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab %s: %w", path, err)
	}

	return vocab, nil
}

// NewTokenizer creates a tokenizer. The vocabulary must contain the BERT
// special tokens.
func NewTokenizer(vocab map[string]int64, maxLength int, lowercase bool) (*Tokenizer, error) {
	if maxLength < 3 {
		return nil, fmt.Errorf("max length %d leaves no room for tokens", maxLength)
	}

	t := &Tokenizer{vocab: vocab, maxLength: maxLength, lowercase: lowercase}
	for token, dst := range map[string]*int64{
		tokenCLS: &t.clsID,
		tokenSEP: &t.sepID,
		tokenPAD: &t.padID,
		tokenUNK: &t.unkID,
	} {
		id, ok := vocab[token]
		if !ok {
			return nil, fmt.Errorf("vocab is missing special token %s", token)
		}
		*dst = id
	}

	return t, nil
}

// word is a pre-tokenized span of the input
type word struct {
	start, end int
}

// splitWords separates text on whitespace and isolates punctuation, the
// way BERT's basic tokenizer does
func splitWords(text string) []word {
	var words []word
	start := -1
	for i, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			if start >= 0 {
				words = append(words, word{start, i})
				start = -1
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			if start >= 0 {
				words = append(words, word{start, i})
				start = -1
			}
			_, size := utf8.DecodeRuneInString(text[i:])
			words = append(words, word{i, i + size})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, word{start, len(text)})
	}
	return words
}

// Encode tokenizes text into a single sequence wrapped in [CLS] ... [SEP],
// truncated to the tokenizer's max length
func (t *Tokenizer) Encode(text string) *TokenizedInput {
	in := &TokenizedInput{}
	in.append(t.clsID, [2]int{-1, -1}, false)

	budget := t.maxLength - 2
	for _, w := range splitWords(text) {
		pieces := t.wordPieces(text[w.start:w.end], w.start)
		if in.Len()-1+len(pieces) > budget {
			in.Truncated = true
			break
		}
		for i, p := range pieces {
			in.append(p.id, p.span, i == 0)
		}
	}

	in.append(t.sepID, [2]int{-1, -1}, false)
	return in
}

func (in *TokenizedInput) append(id int64, span [2]int, wordStart bool) {
	in.InputIDs = append(in.InputIDs, id)
	in.AttentionMask = append(in.AttentionMask, 1)
	in.TokenTypeIDs = append(in.TokenTypeIDs, 0)
	in.Offsets = append(in.Offsets, span)
	in.WordStart = append(in.WordStart, wordStart)
}

type piece struct {
	id   int64
	span [2]int
}

// wordPieces greedily matches the longest vocabulary prefix, then the
// longest "##" continuation, until the word is consumed. A word that cannot
// be fully covered becomes a single [UNK].
func (t *Tokenizer) wordPieces(w string, base int) []piece {
	runes := []rune(w)
	unk := []piece{{id: t.unkID, span: [2]int{base, base + len(w)}}}
	if len(runes) > maxInputRunesPerWord {
		return unk
	}

	// byte offset of every rune boundary within w; an invalid byte decodes
	// to utf8.RuneError but spans only one byte
	bounds := make([]int, 0, len(runes)+1)
	for i := range w {
		bounds = append(bounds, i)
	}
	bounds = append(bounds, len(w))

	lookup := runes
	if t.lowercase {
		lookup = make([]rune, len(runes))
		for i, r := range runes {
			lookup[i] = unicode.ToLower(r)
		}
	}

	var pieces []piece
	for start := 0; start < len(runes); {
		end := len(runes)
		found := false
		var id int64
		for ; end > start; end-- {
			candidate := string(lookup[start:end])
			if start > 0 {
				candidate = subwordPrefix + candidate
			}
			if v, ok := t.vocab[candidate]; ok {
				id, found = v, true
				break
			}
		}
		if !found {
			return unk
		}
		pieces = append(pieces, piece{id: id, span: [2]int{base + bounds[start], base + bounds[end]}})
		start = end
	}
	return pieces
}
