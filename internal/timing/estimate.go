package timing

import (
	"github.com/scwf/open-dubbing/internal/config"
)

// MinRequiredMS estimates the minimum speaking duration for a piece of text.
// Han characters and latin word tokens are counted independently and priced
// per config; mixed text sums both terms. This is a density heuristic, not a
// linguistic model.
func MinRequiredMS(text string, cfg config.Timing) int64 {
	han, words := countTextUnits(text)
	return int64(han)*int64(cfg.ChineseCharMS) + int64(words)*int64(cfg.EnglishWordMS)
}

func countTextUnits(text string) (hanChars, latinWords int) {
	inWord := false
	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			hanChars++
			inWord = false
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			if !inWord {
				latinWords++
				inWord = true
			}
		case r == '\'':
			// Word-internal apostrophes ("it's") do not split tokens.
		default:
			inWord = false
		}
	}
	return hanChars, latinWords
}
