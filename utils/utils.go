package utils

import (
	"strings"
	"unicode"
)

type Reply int

const (
	ReplyOther Reply = iota
	ReplyYes
	ReplyNo
)

var affirmativeReplies = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "yup": true, "ok": true, "okay": true,
	"sure": true, "confirm": true, "confirmed": true, "proceed": true, "go ahead": true,
	"do it": true, "affirmative": true, "yes do it": true, "yes go ahead": true,
}

var negativeReplies = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "cancel": true, "abort": true,
	"stop": true, "never mind": true, "nevermind": true, "forget it": true, "don't": true,
	"do not": true, "no cancel": true, "no don't": true,
}

// ParseConfirmation classifies a bare yes/no reply. The whole reply must be one of
// the known answers, optionally wrapped in "please" or "thanks"; anything else is
// ReplyOther so that requests such as "ok show my enrollments" reach the classifier.
func ParseConfirmation(input string) Reply {
	s := trimCourtesy(NormalizeString(input))
	switch {
	case s == "":
		return ReplyOther
	case negativeReplies[s]:
		return ReplyNo
	case affirmativeReplies[s]:
		return ReplyYes
	}
	return ReplyOther
}

func trimCourtesy(s string) string {
	s = strings.TrimPrefix(s, "please ")
	for _, suffix := range []string{" please", " thanks", " thank you"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}

// NormalizeString lowercases, drops punctuation other than apostrophes and collapses whitespace.
func NormalizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) && r != '\'' {
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
