package util

import (
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// cairoKeywords covers both Cairo 0 and Cairo 1 tokens the identifier
// extractor must not treat as variable names.
var cairoKeywords = map[string]bool{
	"let": true, "mut": true, "if": true, "else": true, "match": true,
	"return": true, "true": true, "false": true, "self": true, "loop": true,
	"while": true, "for": true, "in": true, "break": true, "continue": true,
	"fn": true, "func": true, "use": true, "mod": true, "struct": true,
	"enum": true, "impl": true, "trait": true, "pub": true, "ref": true,
	"as": true, "of": true, "felt": true, "felt252": true,
}

// IsKeyword reports whether tok is a Cairo keyword.
func IsKeyword(tok string) bool { return cairoKeywords[tok] }

// Identifiers extracts variable names from an expression: tokens shaped like
// identifiers that are neither keywords nor immediately followed by an open
// paren (those are callees). Each name is returned once, in first-seen order.
func Identifiers(expr string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, loc := range identRe.FindAllStringIndex(expr, -1) {
		tok := expr[loc[0]:loc[1]]
		if cairoKeywords[tok] {
			continue
		}
		rest := strings.TrimLeft(expr[loc[1]:], " ")
		if strings.HasPrefix(rest, "(") {
			continue
		}
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// SplitTopLevel splits s on sep, ignoring separators nested inside angle
// brackets, parentheses, brackets or braces. Used for parameter lists where
// generic types carry their own commas.
func SplitTopLevel(s string, sep rune) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '<', '(', '[', '{':
			depth++
		case '>', ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + len(string(r))
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// StripLineComment removes a trailing // comment that is not inside a string
// literal.
func StripLineComment(line string) string {
	inStr := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '"':
			inStr = !inStr
		case !inStr && line[i] == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

// MatchedBody scans lines starting at open (0-based index of the line that
// carries the first opening brace) and returns the 0-based line and column of
// the matching close brace. Braces inside string literals, line comments and
// block comments are ignored. Returns (-1, -1) when the body never closes.
func MatchedBody(lines []string, open int) (int, int) {
	depth := 0
	opened := false
	inBlock := false
	for i := open; i < len(lines); i++ {
		line := lines[i]
		inStr := false
		for j := 0; j < len(line); j++ {
			if inBlock {
				if line[j] == '*' && j+1 < len(line) && line[j+1] == '/' {
					inBlock = false
					j++
				}
				continue
			}
			switch {
			case line[j] == '"':
				inStr = !inStr
			case inStr:
			case line[j] == '/' && j+1 < len(line) && line[j+1] == '/':
				j = len(line)
			case line[j] == '/' && j+1 < len(line) && line[j+1] == '*':
				inBlock = true
				j++
			case line[j] == '{':
				depth++
				opened = true
			case line[j] == '}':
				depth--
				if opened && depth == 0 {
					return i, j
				}
			}
		}
	}
	return -1, -1
}
