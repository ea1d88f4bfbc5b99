package cppgen

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/overload"
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// Identifier joins the alphanumeric words of parts into one CamelCase C++
// identifier: ("geometry", "ns::Shape") becomes "GeometryNsShape".
func Identifier(parts ...string) string {
	var sb strings.Builder
	for _, p := range parts {
		words := strings.FieldsFunc(p, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, word := range words {
			sb.WriteString(titleCaser.String(word))
		}
	}
	return sb.String()
}

// sanitize replaces every character that cannot appear in a C++ identifier.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, name)
}

// WrapperName is the C++ name of the dispatch function for g.
func WrapperName(g *overload.Group) string {
	if g.Kind == overload.KindConstructor {
		return config.WrapperPrefix + sanitize(g.Scope) + config.ConstructorSuffix
	}
	return config.WrapperPrefix + sanitize(g.Scope) + "_" + sanitize(g.Name)
}

// TypeObjectName is the C++ name of the host type object of a bound class.
func TypeObjectName(module, class string) string {
	return Identifier(module, class) + "_Type"
}

// rt qualifies a runtime support library symbol.
func rt(symbol string) string {
	return config.RuntimeNamespace + "::" + symbol
}

// instantiate renders a template instantiation, keeping "<::" apart.
func instantiate(tmpl, arg string) string {
	if strings.HasPrefix(arg, ":") {
		return tmpl + "< " + arg + ">"
	}
	return tmpl + "<" + arg + ">"
}

func qualifiedClass(name string) string {
	return "::" + strings.TrimPrefix(name, "::")
}

func cQuote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s) + `"`
}
