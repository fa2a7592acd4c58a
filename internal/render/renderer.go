// Package render substitutes {{ name }} placeholders in campaign bodies and
// subjects with per-recipient values, formatting typed values for a locale.
package render

import (
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// DefaultLocale is used when neither the renderer nor the call names one.
const DefaultLocale = "pt-BR"

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Renderer renders bodies through the Liquid engine with pre-formatted
// bindings. Names without a value render as the empty string. Output depends
// only on the inputs; the parse cache is keyed by body.
type Renderer struct {
	engine *liquid.Engine
	locale string
	cache  sync.Map // body -> *parsed
}

type parsed struct {
	tpl *liquid.Template // nil when Liquid rejected the body
}

// New creates a renderer with the given default locale.
func New(locale string) *Renderer {
	if locale == "" {
		locale = DefaultLocale
	}
	return &Renderer{
		engine: liquid.NewEngine(),
		locale: locale,
	}
}

// Locale returns the renderer's default locale.
func (r *Renderer) Locale() string { return r.locale }

// Render renders body in the renderer's default locale.
func (r *Renderer) Render(body string, values map[string]string, types map[string]domain.VariableType) string {
	return r.RenderIn(r.locale, body, values, types)
}

// RenderIn renders body with values formatted for locale. An empty locale
// means the renderer default.
func (r *Renderer) RenderIn(locale, body string, values map[string]string, types map[string]domain.VariableType) string {
	if locale == "" {
		locale = r.locale
	}
	formatted := make(map[string]string, len(values))
	for name, raw := range values {
		formatted[name] = FormatValue(raw, types[name], locale)
	}

	tpl := r.parse(body)
	if tpl == nil {
		return substitute(body, formatted)
	}
	bindings := make(liquid.Bindings, len(formatted))
	for k, v := range formatted {
		bindings[k] = v
	}
	out, err := tpl.RenderString(bindings)
	if err != nil {
		logger.Debug("liquid render failed, using plain substitution", "error", err.Error())
		return substitute(body, formatted)
	}
	return out
}

// parse returns nil when body must go through plain substitution: Liquid
// rejected it, or it names a placeholder such as user.name that Liquid
// would read as a property path instead of a flat key.
func (r *Renderer) parse(body string) *liquid.Template {
	if cached, ok := r.cache.Load(body); ok {
		return cached.(*parsed).tpl
	}
	if hasPathNames(body) {
		r.cache.Store(body, &parsed{})
		return nil
	}
	tpl, err := r.engine.ParseString(body)
	if err != nil {
		logger.Debug("liquid parse failed, using plain substitution", "error", err.Error())
		tpl = nil
	}
	r.cache.Store(body, &parsed{tpl: tpl})
	return tpl
}

func hasPathNames(body string) bool {
	for _, name := range Placeholders(body) {
		if strings.ContainsAny(name, ".-") {
			return true
		}
	}
	return false
}

// substitute replaces every {{ name }} occurrence with its value, or the
// empty string when the name is unknown.
func substitute(body string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		return values[name]
	})
}

// Placeholders lists the distinct names referenced by body in first-seen order.
func Placeholders(body string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
