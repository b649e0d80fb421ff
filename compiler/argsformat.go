package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hicann/fftsplus/core"
)

// TokenKind is one args-format token type.
type TokenKind uint8

const (
	TokInput       TokenKind = iota // {iN}
	TokOutput                       // {oN}
	TokWorkspace                    // {wsN}
	TokTiling                       // {t}
	TokFfts                         // {ffts}
	TokPlaceholder                  // {-}
)

var tokenNames = [...]string{"i", "o", "ws", "t", "ffts", "-"}

// Token is one parsed args-format element. Index is meaningful for the
// indexed kinds only.
type Token struct {
	Kind  TokenKind
	Index int
}

func (t Token) String() string {
	switch t.Kind {
	case TokInput, TokOutput, TokWorkspace:
		return fmt.Sprintf("{%s%d}", tokenNames[t.Kind], t.Index)
	}
	if int(t.Kind) < len(tokenNames) {
		return "{" + tokenNames[t.Kind] + "}"
	}
	return fmt.Sprintf("{token(%d)}", uint8(t.Kind))
}

// ParseArgsFormat splits an args-format string such as "{i0}{i1}{o0}{t}" into
// tokens. Whitespace between tokens is ignored.
func ParseArgsFormat(s string) ([]Token, error) {
	var toks []Token
	rest := s
	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return toks, nil
		}
		if rest[0] != '{' {
			return nil, core.ParamInvalidf("args format %q: unexpected %q at offset %d", s, rest[0], len(s)-len(rest))
		}
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return nil, core.ParamInvalidf("args format %q: unterminated token at offset %d", s, len(s)-len(rest))
		}
		tok, err := parseToken(rest[1:end])
		if err != nil {
			return nil, core.ParamInvalidf("args format %q: %v", s, err)
		}
		toks = append(toks, tok)
		rest = rest[end+1:]
	}
}

// parseToken parses the body of one {...} token.
func parseToken(body string) (Token, error) {
	switch body {
	case "t":
		return Token{Kind: TokTiling}, nil
	case "ffts":
		return Token{Kind: TokFfts}, nil
	case "-":
		return Token{Kind: TokPlaceholder}, nil
	}

	var kind TokenKind
	var digits string
	switch {
	case strings.HasPrefix(body, "ws"):
		kind, digits = TokWorkspace, body[2:]
	case strings.HasPrefix(body, "i"):
		kind, digits = TokInput, body[1:]
	case strings.HasPrefix(body, "o"):
		kind, digits = TokOutput, body[1:]
	default:
		return Token{}, fmt.Errorf("unknown token {%s}", body)
	}
	if digits == "" {
		return Token{}, fmt.Errorf("token {%s} has no index", body)
	}
	idx, err := strconv.Atoi(digits)
	if err != nil || idx < 0 {
		return Token{}, fmt.Errorf("token {%s} has invalid index %q", body, digits)
	}
	return Token{Kind: kind, Index: idx}, nil
}
