package policy

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// InnerCommands extracts nested command text that substring matching can
// be blinded to: the string body of a bash/sh/zsh/ksh/dash -c invocation
// and the argument text of eval. The input is parsed as Bash; commands
// the grammar rejects yield nothing, which is fine because the lexical
// passes already ran on them.
func InnerCommands(command string) []string {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil
	}

	var inner []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name := baseName(wordText(call.Args[0]))
		switch name {
		case "bash", "sh", "zsh", "ksh", "dash":
			// The word after -c is the script body.
			for i := 1; i < len(call.Args)-1; i++ {
				if wordText(call.Args[i]) == "-c" {
					if body := strings.TrimSpace(wordText(call.Args[i+1])); body != "" {
						inner = append(inner, body)
					}
					break
				}
			}
		case "eval":
			var parts []string
			for _, arg := range call.Args[1:] {
				if t := wordText(arg); t != "" {
					parts = append(parts, t)
				}
			}
			if body := strings.TrimSpace(strings.Join(parts, " ")); body != "" {
				inner = append(inner, body)
			}
		}
		return true
	})
	return inner
}

// wordText flattens a parsed word to its literal text, looking through
// single and double quoting. Expansions contribute nothing: their value
// is unknowable statically.
func wordText(w *syntax.Word) string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, q := range p.Parts {
				if lit, ok := q.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String()
}

// baseName strips any path prefix from a command word, so /bin/bash and
// bash screen the same.
func baseName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
