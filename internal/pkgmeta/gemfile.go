package pkgmeta

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// Gemfile is the statically readable part of a Bundler Gemfile. Ruby code
// beyond the common declarations is kept verbatim in Other.
type Gemfile struct {
	Sources  []string        `json:"sources,omitempty"`
	Ruby     string          `json:"ruby,omitempty"`
	Gemspec  bool            `json:"gemspec,omitempty"`
	Gems     []GemDependency `json:"gems,omitempty"`
	Comments []string        `json:"comments,omitempty"`
	Other    []string        `json:"other,omitempty"`
}

// GemDependency is one "gem" declaration.
type GemDependency struct {
	Name         string            `json:"name"`
	Requirements []string          `json:"requirements,omitempty"`
	Options      map[string]string `json:"options,omitempty"`
	Groups       []string          `json:"groups,omitempty"`
}

// ParseGemfile reads source, ruby, gemspec, gem and group declarations.
// Gems inside "group ... do" blocks carry the group names.
func ParseGemfile(data []byte) (*Gemfile, error) {
	gf := &Gemfile{}
	var groups [][]string

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			gf.Comments = append(gf.Comments, strings.TrimSpace(strings.TrimLeft(line, "#")))
			continue
		}

		keyword, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		switch keyword {
		case "source":
			if rest != "" {
				gf.Sources = append(gf.Sources, literal(rest))
			}
		case "ruby":
			if rest != "" {
				gf.Ruby = literal(splitArgs(rest)[0])
			}
		case "gemspec":
			gf.Gemspec = true
		case "gem":
			dep, err := parseGem(rest)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidMetadata, lineNo, err)
			}
			for _, g := range groups {
				dep.Groups = append(dep.Groups, g...)
			}
			gf.Gems = append(gf.Gems, dep)
		case "group":
			names := strings.TrimSpace(strings.TrimSuffix(rest, "do"))
			var group []string
			for _, arg := range splitArgs(names) {
				group = append(group, literal(arg))
			}
			groups = append(groups, group)
		case "end":
			if len(groups) == 0 {
				return nil, fmt.Errorf("%w: line %d: unmatched end", ErrInvalidMetadata, lineNo)
			}
			groups = groups[:len(groups)-1]
		default:
			gf.Other = append(gf.Other, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading Gemfile: %w", err)
	}
	return gf, nil
}

func parseGem(args string) (GemDependency, error) {
	items := splitArgs(args)
	if len(items) == 0 || items[0] == "" {
		return GemDependency{}, fmt.Errorf("gem without a name")
	}
	dep := GemDependency{Name: literal(items[0])}
	for _, item := range items[1:] {
		if key, value, ok := option(item); ok {
			if dep.Options == nil {
				dep.Options = make(map[string]string)
			}
			dep.Options[key] = value
			continue
		}
		dep.Requirements = append(dep.Requirements, literal(item))
	}
	return dep, nil
}

// splitArgs splits a Ruby argument list on commas outside string literals
// and brackets.
func splitArgs(s string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		depth int
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '[' || r == '{' || r == '(':
			depth++
		case r == ']' || r == '}' || r == ')':
			depth--
		case r == ',' && depth == 0:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		case r == '#' && depth == 0:
			// Trailing comment.
			args = append(args, strings.TrimSpace(cur.String()))
			return args
		}
		cur.WriteRune(r)
	}
	return append(args, strings.TrimSpace(cur.String()))
}

// option recognises "key: value" and ":key => value" arguments.
func option(item string) (string, string, bool) {
	if k, v, ok := strings.Cut(item, "=>"); ok {
		return strings.TrimPrefix(strings.TrimSpace(k), ":"), literal(v), true
	}
	if item == "" || item[0] == '\'' || item[0] == '"' || item[0] == ':' {
		return "", "", false
	}
	if k, v, ok := strings.Cut(item, ":"); ok && !strings.ContainsAny(k, " \t") {
		return k, literal(v), true
	}
	return "", "", false
}

// literal strips quotes from a string literal and the colon from a
// symbol. Anything else is returned trimmed.
func literal(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return strings.TrimPrefix(s, ":")
}
