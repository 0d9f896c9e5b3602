package manifest

import (
	"fmt"
	"strings"

	"github.com/initializ/skillforge/internal/contract"
)

// Expander resolves ${NAME}, ${NAME:-default}, and ${NAME:?message}
// references against a layered set of variable sources.
type Expander struct {
	lookup func(name string) (string, bool)
}

// NewExpander builds an Expander over a flat variable map (the caller has
// already flattened OS env / dotenv / config-declared values into lookup
// priority order before constructing this).
func NewExpander(vars map[string]string) *Expander {
	return &Expander{lookup: func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}}
}

const maxExpandDepth = 32

// Expand resolves every ${...} reference in s. Nested references are
// resolved inside-out; a reference cycle (a variable whose own expansion
// depends on itself, directly or transitively) is reported rather than
// looping forever.
func (e *Expander) Expand(s string) (string, error) {
	return e.expandDepth(s, nil, 0)
}

func (e *Expander) expandDepth(s string, stack []string, depth int) (string, error) {
	if depth > maxExpandDepth {
		return "", contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("variable expansion cycle detected: %s", strings.Join(stack, " -> ")))
	}

	var out strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		out.WriteString(s[i : i+start])
		i += start

		end, ok := matchBrace(s, i)
		if !ok {
			// Unterminated "${" — pass through literally.
			out.WriteString(s[i:])
			break
		}
		inner := s[i+2 : end]
		resolved, err := e.resolveRef(inner, stack, depth)
		if err != nil {
			return "", err
		}
		out.WriteString(resolved)
		i = end + 1
	}
	return out.String(), nil
}

// matchBrace finds the matching "}" for the "${" starting at s[open:open+2],
// honoring nested "${...}" so inner-most references can themselves contain
// variable references in their default/message clause.
func matchBrace(s string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "${"):
			depth++
			i++ // consume the second char of "${" too
		case s[i] == '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func (e *Expander) resolveRef(inner string, stack []string, depth int) (string, error) {
	name, clause, hasClause := splitClause(inner)

	for _, s := range stack {
		if s == name {
			return "", contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("variable expansion cycle detected: %s -> %s", strings.Join(stack, " -> "), name))
		}
	}
	nextStack := append(append([]string{}, stack...), name)

	val, present := e.lookup(name)

	if !hasClause {
		if !present {
			return "", contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("required variable %q is not set", name)).WithDetails(map[string]any{"var": name})
		}
		return e.expandDepth(val, nextStack, depth+1)
	}

	switch clause.op {
	case "-":
		if present && val != "" {
			return e.expandDepth(val, nextStack, depth+1)
		}
		return e.expandDepth(clause.arg, nextStack, depth+1)
	case "?":
		if !present {
			msg := clause.arg
			if msg == "" {
				msg = fmt.Sprintf("required variable %q is not set", name)
			}
			return "", contract.NewFailure(contract.FailureConfigError, msg).WithDetails(map[string]any{"var": name})
		}
		return e.expandDepth(val, nextStack, depth+1)
	default:
		return "", contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("malformed variable reference ${%s}", inner))
	}
}

type clauseSpec struct {
	op  string // "-" or "?"
	arg string
}

// splitClause parses "NAME", "NAME:-default", or "NAME:?message".
func splitClause(inner string) (name string, clause clauseSpec, hasClause bool) {
	idx := strings.Index(inner, ":")
	if idx < 0 {
		return inner, clauseSpec{}, false
	}
	name = inner[:idx]
	rest := inner[idx+1:]
	if rest == "" {
		return name, clauseSpec{}, false
	}
	op := rest[:1]
	arg := rest[1:]
	if op != "-" && op != "?" {
		return name, clauseSpec{}, false
	}
	return name, clauseSpec{op: op, arg: arg}, true
}

// ExpandMap expands every value in m, returning a new map. The first error
// encountered aborts the whole map (the resolver never partially applies
// an instance).
func (e *Expander) ExpandMap(m map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		expanded, err := e.Expand(v)
		if err != nil {
			return nil, err
		}
		out[k] = expanded
	}
	return out, nil
}
