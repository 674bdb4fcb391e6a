package router

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// validateRouteSpec validates a RouteSpec.
func validateRouteSpec(spec RouteSpec) error {
	if spec.OperationID == "" {
		return errors.New("field OperationID required")
	}

	if !isValidIdentifier(spec.OperationID) {
		return fmt.Errorf("invalid OperationID %q", spec.OperationID)
	}

	if spec.Summary == "" {
		return errors.New("field Summary required")
	}

	if spec.Description == "" {
		return errors.New("field Description required")
	}

	if spec.Group == "" {
		return errors.New("field Group required")
	}

	if spec.Handler == nil {
		return errors.New("field Handler required")
	}

	if len(spec.Responses) == 0 {
		return errors.New("at least one response required")
	}

	return nil
}

// validateParameters checks that every path parameter is documented and every
// documented parameter is well formed.
func validateParameters(spec RouteSpec) error {
	paramsInPath := map[string]struct{}{}
	documentedPathParams := map[string]struct{}{}

	for section := range strings.SplitSeq(spec.fullPath, "/") {
		names, err := extractParamNames(section)
		if err != nil {
			return fmt.Errorf("invalid path %s: %w", spec.fullPath, err)
		}

		for _, name := range names {
			if !isValidIdentifier(name) {
				return fmt.Errorf("invalid parameter name %s in path %s", name, spec.fullPath)
			}
			paramsInPath[name] = struct{}{}
		}
	}

	validIn := []ParameterIn{ParameterInPath, ParameterInQuery, ParameterInHeader}

	for name, p := range spec.Parameters {
		if name == "" {
			return fmt.Errorf("parameter name required for %s %s", spec.method, spec.fullPath)
		}

		if p.Description == "" {
			return fmt.Errorf("parameter Description required for %s %s", spec.method, spec.fullPath)
		}

		if p.Type == nil {
			return fmt.Errorf("parameter Type required for %s %s", spec.method, spec.fullPath)
		}

		if !slices.Contains(validIn, p.In) {
			return fmt.Errorf("parameter In must be one of %v for %s %s", validIn, spec.method, spec.fullPath)
		}

		if p.In == ParameterInPath {
			if _, ok := paramsInPath[name]; !ok {
				return fmt.Errorf("documented path parameter %s not found in path", name)
			}

			if !p.Required {
				return fmt.Errorf("path parameter %s must be required", name)
			}

			documentedPathParams[name] = struct{}{}
		}
	}

	for name := range paramsInPath {
		if _, ok := documentedPathParams[name]; !ok {
			return fmt.Errorf("path parameter %s not documented", name)
		}
	}

	return nil
}

// sanitizePath collapses double slashes and drops the trailing slash.
func sanitizePath(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "/"
	}

	return path
}

// extractParamNames returns the parameter names in a path segment, without any
// chi regex matcher ({id:[0-9]+} gives id).
func extractParamNames(section string) ([]string, error) {
	if strings.Count(section, "{") != strings.Count(section, "}") {
		return nil, errors.New("mismatched number of '{' and '}' in path")
	}

	var names []string

	start := -1
	for i, ch := range section {
		switch {
		case ch == '{':
			start = i + 1
		case ch == '}' && start >= 0:
			name, _, _ := strings.Cut(section[start:i], ":")
			if name != "" {
				names = append(names, name)
			}
			start = -1
		}
	}

	return names, nil
}

// openAPIPath strips chi regex matchers so the path is a valid OpenAPI template.
func openAPIPath(path string) string {
	var b strings.Builder

	inParam, skipping := false, false
	for _, ch := range path {
		switch {
		case ch == '{':
			inParam = true
		case ch == '}':
			inParam, skipping = false, false
		case ch == ':' && inParam:
			skipping = true
		}

		if !skipping {
			b.WriteRune(ch)
		}
	}

	return b.String()
}

// isValidIdentifier reports whether name starts with an ASCII letter and
// continues with letters, digits or underscores.
func isValidIdentifier(name string) bool {
	if name == "" {
		return false
	}

	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !isLetter {
			return false
		}

		if !isLetter && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}
