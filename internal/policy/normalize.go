package policy

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeCommand rewrites command text into a canonical form for
// matching: invalid UTF-8 is replaced, NFKC folds compatibility forms
// (fullwidth ｒｍ becomes rm), zero-width and directional formatting
// characters are stripped, and common cross-script homoglyphs map to
// ASCII. Only the matched text changes; the command the agent runs is
// untouched.
func NormalizeCommand(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = norm.NFKC.String(s)
	s = stripInvisible(s)
	s = foldConfusables(s)
	return s
}

// invisibleRunes are zero-width and formatting characters that render as
// nothing but defeat pattern matching: "r‍m" looks like "rm" to a
// human and matches no rm rule.
var invisibleRunes = map[rune]bool{
	'​': true, // zero-width space
	'‌': true, // zero-width non-joiner
	'‍': true, // zero-width joiner
	'﻿': true, // zero-width no-break space (BOM)
	'­': true, // soft hyphen
	'͏': true, // combining grapheme joiner
	'؜': true, // arabic letter mark
	'᠎': true, // mongolian vowel separator
	'⁠': true, // word joiner
	'⁡': true, // function application
	'⁢': true, // invisible times
	'⁣': true, // invisible separator
	'⁤': true, // invisible plus
	'‎': true, // left-to-right mark
	'‏': true, // right-to-left mark
	'‪': true, // left-to-right embedding
	'‫': true, // right-to-left embedding
	'‬': true, // pop directional formatting
	'‭': true, // left-to-right override
	'‮': true, // right-to-left override
}

func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if invisibleRunes[r] {
			return -1
		}
		return r
	}, s)
}

// confusableRunes maps the cross-script homoglyphs seen in evasion
// attempts to their ASCII look-alikes. Cyrillic and Greek letters cover
// the practical cases; NFKC already handles fullwidth and small-capital
// compatibility forms.
var confusableRunes = map[rune]rune{
	// Cyrillic
	'а': 'a', // а
	'е': 'e', // е
	'і': 'i', // і
	'о': 'o', // о
	'р': 'p', // р
	'с': 'c', // с
	'у': 'y', // у
	'х': 'x', // х
	'А': 'A', // А
	'В': 'B', // В
	'Е': 'E', // Е
	'К': 'K', // К
	'М': 'M', // М
	'Н': 'H', // Н
	'О': 'O', // О
	'Р': 'P', // Р
	'С': 'C', // С
	'Т': 'T', // Т
	'Х': 'X', // Х
	// Greek
	'α': 'a', // α
	'ε': 'e', // ε
	'ι': 'i', // ι
	'ο': 'o', // ο
	'ρ': 'p', // ρ
	'Α': 'A', // Α
	'Β': 'B', // Β
	'Ε': 'E', // Ε
	'Η': 'H', // Η
	'Ι': 'I', // Ι
	'Κ': 'K', // Κ
	'Μ': 'M', // Μ
	'Ν': 'N', // Ν
	'Ο': 'O', // Ο
	'Ρ': 'P', // Ρ
	'Τ': 'T', // Τ
	'Υ': 'Y', // Υ
	'Χ': 'X', // Χ
}

func foldConfusables(s string) string {
	return strings.Map(func(r rune) rune {
		if ascii, ok := confusableRunes[r]; ok {
			return ascii
		}
		return r
	}, s)
}
