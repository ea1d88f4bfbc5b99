package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrDestructor is returned by ParseSignature for destructor declarations,
// which are never bound.
var ErrDestructor = errors.New("destructors are not bound")

var (
	typeNameRe  = regexp.MustCompile(`^(::)?[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$`)
	trailNameRe = regexp.MustCompile(`^(.*[\s*&])([A-Za-z_][A-Za-z0-9_]*)$`)
)

var typeKeywords = map[string]bool{
	"int": true, "char": true, "short": true, "long": true, "double": true, "float": true,
	"bool": true, "unsigned": true, "signed": true, "const": true, "void": true,
}

// ParseType parses a C++ type reference like "const std::map<int, Shape*>&".
func ParseType(src string) (*Type, error) {
	s := strings.TrimSpace(src)
	if s == "" {
		return nil, errors.New("empty type")
	}
	if strings.HasSuffix(s, "&&") {
		return nil, fmt.Errorf("type %q: rvalue references are not supported", src)
	}
	t := &Type{}
	if strings.HasSuffix(s, "&") {
		t.Reference = true
		s = strings.TrimSpace(s[:len(s)-1])
	}
	for {
		switch {
		case strings.HasSuffix(s, "*"):
			t.Indirections++
			s = strings.TrimSpace(s[:len(s)-1])
			continue
		case hasWordSuffix(s, "const"):
			s = strings.TrimSpace(s[:len(s)-len("const")])
			// "T* const" is a const pointer, irrelevant for binding
			if !strings.HasSuffix(s, "*") {
				t.Const = true
			}
			continue
		}
		break
	}
	if strings.HasPrefix(s, "const ") {
		t.Const = true
		s = strings.TrimSpace(s[len("const "):])
	}
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if !strings.HasSuffix(s, ">") {
			return nil, fmt.Errorf("type %q: unbalanced template brackets", src)
		}
		inner := s[i+1 : len(s)-1]
		s = strings.TrimSpace(s[:i])
		for _, part := range splitTopLevel(inner, ',') {
			inst, err := ParseType(part)
			if err != nil {
				return nil, fmt.Errorf("type %q: %w", src, err)
			}
			t.Instantiations = append(t.Instantiations, inst)
		}
	}
	t.Name = strings.Join(strings.Fields(s), " ")
	for _, word := range strings.Fields(t.Name) {
		if !typeNameRe.MatchString(word) {
			return nil, fmt.Errorf("type %q: invalid name %q", src, t.Name)
		}
	}
	if t.Name == "" {
		return nil, fmt.Errorf("type %q: missing name", src)
	}
	return t, nil
}

func hasWordSuffix(s, word string) bool {
	if !strings.HasSuffix(s, word) {
		return false
	}
	if len(s) == len(word) {
		return true
	}
	c := s[len(s)-len(word)-1]
	return c == ' ' || c == '*' || c == '>'
}

// ParseSignature parses a C++ declaration such as
// "static double area(int w, int h = 0) const". owner is the enclosing class
// name ("" at module scope) and identifies constructors.
func ParseSignature(decl, owner string) (*Function, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(decl), ";"))
	open := paramListStart(s)
	if open < 0 {
		return nil, fmt.Errorf("declaration %q: missing parameter list", decl)
	}
	end := matchingParen(s, open)
	if end < 0 {
		return nil, fmt.Errorf("declaration %q: unbalanced parentheses", decl)
	}
	head := strings.TrimSpace(s[:open])
	params := s[open+1 : end]
	tail := strings.TrimSpace(s[end+1:])

	f := &Function{Owner: owner, Declaring: owner, Access: AccessPublic}

	for tail != "" {
		switch {
		case strings.HasPrefix(tail, "const"):
			f.Const = true
			tail = strings.TrimSpace(tail[len("const"):])
		case strings.HasPrefix(tail, "override"):
			f.Virtual = true
			tail = strings.TrimSpace(tail[len("override"):])
		case strings.HasPrefix(tail, "final"):
			tail = strings.TrimSpace(tail[len("final"):])
		case strings.HasPrefix(tail, "noexcept"):
			tail = strings.TrimSpace(tail[len("noexcept"):])
		case strings.HasPrefix(tail, "="):
			rest := strings.TrimSpace(tail[1:])
			switch rest {
			case "0":
				f.Abstract = true
				f.Virtual = true
			case "delete":
				return nil, fmt.Errorf("declaration %q: deleted functions are not bound", decl)
			case "default":
			default:
				return nil, fmt.Errorf("declaration %q: unexpected %q", decl, tail)
			}
			tail = ""
		default:
			return nil, fmt.Errorf("declaration %q: unexpected %q", decl, tail)
		}
	}

	for {
		word, rest, _ := strings.Cut(head, " ")
		switch word {
		case "static":
			f.Static = true
		case "virtual":
			f.Virtual = true
		case "explicit":
			f.Explicit = true
		case "inline", "constexpr", "friend":
		default:
			goto qualifiersDone
		}
		head = strings.TrimSpace(rest)
	}
qualifiersDone:

	if i := operatorIndex(head); i >= 0 {
		ret := strings.TrimSpace(head[:i])
		sym := strings.TrimSpace(head[i+len("operator"):])
		if ret == "" {
			t, err := ParseType(sym)
			if err != nil {
				return nil, fmt.Errorf("declaration %q: cast operator: %w", decl, err)
			}
			f.Cast = true
			f.Name = "operator " + t.Signature()
			f.Return = t
		} else {
			t, err := ParseType(ret)
			if err != nil {
				return nil, fmt.Errorf("declaration %q: return type: %w", decl, err)
			}
			f.Operator = strings.ReplaceAll(sym, " ", "")
			f.Name = "operator" + f.Operator
			f.Return = t
		}
	} else {
		m := trailNameRe.FindStringSubmatch(" " + head)
		if m == nil {
			if strings.HasPrefix(head, "~") {
				return nil, ErrDestructor
			}
			return nil, fmt.Errorf("declaration %q: missing function name", decl)
		}
		f.Name = m[2]
		ret := strings.TrimSpace(m[1])
		switch {
		case ret == "" && owner != "" && f.Name == shortName(owner):
			f.Constructor = true
			f.Name = owner
		case ret == "":
			return nil, fmt.Errorf("declaration %q: missing return type", decl)
		default:
			t, err := ParseType(ret)
			if err != nil {
				return nil, fmt.Errorf("declaration %q: return type: %w", decl, err)
			}
			f.Return = t
		}
	}
	if f.Return != nil && f.Return.IsVoid() {
		f.Return = nil
	}

	args, err := parseArguments(params)
	if err != nil {
		return nil, fmt.Errorf("declaration %q: %w", decl, err)
	}
	f.Arguments = args
	return f, nil
}

func parseArguments(params string) ([]*Argument, error) {
	params = strings.TrimSpace(params)
	if params == "" || params == "void" {
		return nil, nil
	}
	parts := splitTopLevel(params, ',')
	args := make([]*Argument, 0, len(parts))
	seenDefault := false
	for i, part := range parts {
		a := &Argument{Index: i}
		decl := part
		if eq := topLevelIndex(part, '='); eq >= 0 {
			decl = part[:eq]
			a.Default = strings.TrimSpace(part[eq+1:])
			if a.Default == "" {
				return nil, fmt.Errorf("argument %d: empty default value", i+1)
			}
			seenDefault = true
		} else if seenDefault && !strings.Contains(decl, "...") {
			return nil, fmt.Errorf("argument %d: missing default value after a defaulted argument", i+1)
		}
		decl = strings.TrimSpace(decl)
		if strings.Contains(decl, "...") {
			if i != len(parts)-1 {
				return nil, fmt.Errorf("argument %d: only the last argument can be variadic", i+1)
			}
			if a.Default != "" {
				return nil, fmt.Errorf("argument %d: variadic arguments cannot have defaults", i+1)
			}
			a.Variadic = true
			decl = strings.Replace(decl, "...", " ", 1)
		}
		typ, name := splitArgumentName(decl)
		t, err := ParseType(typ)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		a.Type = t
		a.Name = name
		args = append(args, a)
	}
	return args, nil
}

func splitArgumentName(decl string) (typ, name string) {
	decl = strings.TrimSpace(decl)
	m := trailNameRe.FindStringSubmatch(decl)
	if m == nil || typeKeywords[m[2]] {
		return decl, ""
	}
	prefix := strings.TrimSpace(m[1])
	switch prefix {
	case "", "const", "unsigned", "signed", "struct", "class":
		return decl, ""
	}
	return prefix, m[2]
}

func shortName(qualified string) string {
	if i := strings.LastIndex(qualified, "::"); i >= 0 {
		return qualified[i+2:]
	}
	return qualified
}

// paramListStart finds the '(' that opens the parameter list, skipping the
// operator symbol of operator declarations.
func paramListStart(s string) int {
	from := 0
	if i := operatorIndex(s); i >= 0 {
		from = i + len("operator")
		rest := strings.TrimSpace(s[from:])
		if strings.HasPrefix(rest, "()") {
			from = strings.Index(s[from:], "()") + from + 2
		} else {
			for from < len(s) && strings.IndexByte(" +-*/%^&|~!=<>[]", s[from]) >= 0 {
				from++
			}
		}
	}
	depth := 0
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case '(':
			if depth <= 0 {
				return i
			}
		}
	}
	return -1
}

// operatorIndex returns the position of the "operator" keyword in s, or -1.
func operatorIndex(s string) int {
	i := strings.Index(s, "operator")
	if i < 0 {
		return -1
	}
	if i > 0 && isIdentChar(s[i-1]) {
		return -1
	}
	if end := i + len("operator"); end < len(s) && isIdentChar(s[end]) {
		return -1
	}
	return i
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func matchingParen(s string, open int) int {
	depth := 0
	inQuote := byte(0)
	for i := open; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == '\\' {
				i++
			} else if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s at sep characters that are not nested inside
// brackets or string literals.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inQuote := byte(0)
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == '\\' {
				i++
			} else if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case '<', '(', '[', '{':
			depth++
		case '>', ')', ']', '}':
			depth--
		default:
			if c == sep && depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

// topLevelIndex returns the index of the first c outside brackets and
// string literals, ignoring "==" comparisons.
func topLevelIndex(s string, c byte) int {
	depth := 0
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inQuote != 0 {
			if ch == '\\' {
				i++
			} else if ch == inQuote {
				inQuote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			inQuote = ch
		case '<', '(', '[', '{':
			depth++
		case '>', ')', ']', '}':
			depth--
		default:
			if ch == c && depth == 0 {
				if c == '=' && i+1 < len(s) && s[i+1] == '=' {
					i++
					continue
				}
				return i
			}
		}
	}
	return -1
}
