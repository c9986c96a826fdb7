// Package tokens provides rough token estimators used between authoritative
// usage reports from the agent.
package tokens

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Estimation method names accepted by New.
const (
	MethodTiktoken  = "tiktoken"
	MethodByteRatio = "byte_ratio"
	MethodCharRatio = "char_ratio"
	MethodNone      = "none"
)

// Estimator approximates the token count of a piece of text.
type Estimator interface {
	Count(text string) int
}

// ByteRatio assumes four bytes per token.
type ByteRatio struct{}

func (ByteRatio) Count(text string) int {
	return ceilDiv(len(text), 4)
}

// CharRatio assumes four characters per token.
type CharRatio struct{}

func (CharRatio) Count(text string) int {
	return ceilDiv(utf8.RuneCountInString(text), 4)
}

// None never adds provisional tokens.
type None struct{}

func (None) Count(string) int { return 0 }

// New returns the estimator for method. An empty method selects byte ratio.
// "tiktoken" is accepted for config compatibility and approximated with the
// byte ratio.
func New(method string) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", MethodByteRatio, MethodTiktoken:
		return ByteRatio{}, nil
	case MethodCharRatio:
		return CharRatio{}, nil
	case MethodNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown token estimation method %q", method)
	}
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
