package selector

import "unicode"

// estimateTokens is a conservative word/punctuation heuristic standing in
// for the model's real BPE tokenizer: no tokenizer library is present in
// the corpus this was grounded on, so token counts here are an
// approximation. The selector's cost accounting does not call it; turn
// costs come from the usage each API response reports. Counts words,
// numbers, and each punctuation character as separate tokens, then adds
// one token for every 4 characters a word runs past 6, for the sub-word
// splits a real BPE tokenizer introduces on longer words.
func estimateTokens(text string) int64 {
	if text == "" {
		return 0
	}

	var words int64
	inWord := false
	var longWordBonus int64
	wordLen := 0

	flush := func() {
		if inWord {
			words++
			if wordLen > 6 {
				longWordBonus += int64(wordLen-6) / 4
			}
			inWord = false
			wordLen = 0
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			inWord = true
			wordLen++
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			words++ // punctuation counts as its own token
		}
	}
	flush()

	return words + longWordBonus
}
