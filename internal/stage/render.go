package stage

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{[^{}]+\}`)

// Vars holds the values placeholders render to.
type Vars struct {
	Inputs     map[string]string
	Outputs    map[string]string
	Workdir    string
	Registry   string
	Entrypoint string
	Config     string
	Ref        string
	Digest     string
}

var commonPlaceholders = []string{"workdir", "registry"}

var kindPlaceholders = map[string][]string{
	KindAssemble: {"entrypoint", "config"},
	KindPublish:  {"ref", "digest"},
}

func placeholderAllowed(kind, name string) bool {
	return contains(commonPlaceholders, name) || contains(kindPlaceholders[kind], name)
}

// validateTemplate rejects placeholders that are unknown for the stage kind
// or that reference undeclared keys.
func validateTemplate(s Spec) error {
	for _, arg := range s.Command {
		for _, m := range placeholderPattern.FindAllString(arg, -1) {
			name := m[1 : len(m)-1]
			if prefix, key, ok := strings.Cut(name, ":"); ok {
				switch prefix {
				case "input":
					if !s.HasInput(key) {
						return specErrorf(s.Name, "placeholder %s references undeclared input", m)
					}
					continue
				case "output":
					if !s.HasOutput(key) {
						return specErrorf(s.Name, "placeholder %s references undeclared output", m)
					}
					continue
				}
				return specErrorf(s.Name, "unknown placeholder %s", m)
			}
			if !placeholderAllowed(s.Kind, name) {
				return specErrorf(s.Name, "unknown placeholder %s", m)
			}
		}
	}
	return nil
}

// renderArgs substitutes placeholders in args.
func renderArgs(args []string, v Vars) ([]string, error) {
	out := make([]string, len(args))
	var firstErr error
	for i, a := range args {
		out[i] = placeholderPattern.ReplaceAllStringFunc(a, func(m string) string {
			val, err := v.lookup(m[1 : len(m)-1])
			if err != nil && firstErr == nil {
				firstErr = err
			}
			return val
		})
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (v Vars) lookup(name string) (string, error) {
	if prefix, key, ok := strings.Cut(name, ":"); ok {
		var m map[string]string
		switch prefix {
		case "input":
			m = v.Inputs
		case "output":
			m = v.Outputs
		}
		if val, found := m[key]; found {
			return val, nil
		}
		return "", fmt.Errorf("placeholder {%s} has no value", name)
	}
	var val string
	switch name {
	case "workdir":
		val = v.Workdir
	case "registry":
		val = v.Registry
	case "entrypoint":
		val = v.Entrypoint
	case "config":
		val = v.Config
	case "ref":
		val = v.Ref
	case "digest":
		val = v.Digest
	default:
		return "", fmt.Errorf("unknown placeholder {%s}", name)
	}
	return val, nil
}
