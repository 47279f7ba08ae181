package operation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// referencePattern matches a single "${...}" substitution token.
var referencePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// wholeReferencePattern matches a string that is *entirely* one
// reference, with nothing else around it.
var wholeReferencePattern = regexp.MustCompile(`^\$\{([^}]+)\}$`)

// substitute walks call recursively, resolving every "${ref}" token
// against the calls already executed (results, zero-indexed) and any
// names bound via save_results, per spec §4.7. It returns a new tree;
// call itself is left untouched.
func substitute(call map[string]any, callIndex int, results []map[string]any, named map[string]map[string]any) (map[string]any, error) {
	out, err := substituteValue(call, callIndex, results, named)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func substituteValue(v any, callIndex int, results []map[string]any, named map[string]map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return substituteString(val, callIndex, results, named)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			substituted, err := substituteValue(child, callIndex, results, named)
			if err != nil {
				return nil, err
			}
			out[k] = substituted
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			substituted, err := substituteValue(child, callIndex, results, named)
			if err != nil {
				return nil, err
			}
			out[i] = substituted
		}
		return out, nil
	default:
		return v, nil
	}
}

func substituteString(s string, callIndex int, results []map[string]any, named map[string]map[string]any) (any, error) {
	if m := wholeReferencePattern.FindStringSubmatch(s); m != nil {
		return resolveRef(m[1], callIndex, results, named)
	}

	if !referencePattern.MatchString(s) {
		return s, nil
	}

	var resolveErr error
	replaced := referencePattern.ReplaceAllStringFunc(s, func(token string) string {
		if resolveErr != nil {
			return token
		}
		ref := referencePattern.FindStringSubmatch(token)[1]
		value, err := resolveRef(ref, callIndex, results, named)
		if err != nil {
			resolveErr = err
			return token
		}
		return coerceToString(value)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return replaced, nil
}

// resolveRef resolves a dotted path rooted at either "results.N" or a
// saved name.
func resolveRef(ref string, callIndex int, results []map[string]any, named map[string]map[string]any) (any, error) {
	segments := strings.Split(ref, ".")
	if len(segments) == 0 || segments[0] == "" {
		return nil, opError("empty substitution reference")
	}

	var root any
	var rest []string

	if segments[0] == "results" {
		if len(segments) < 2 {
			return nil, opError("substitution reference %q is missing a result index", ref)
		}
		idx, err := strconv.Atoi(segments[1])
		if err != nil {
			return nil, opError("substitution reference %q has a non-integer result index", ref)
		}
		if idx < 0 || idx >= callIndex {
			return nil, opError("substitution reference %q refers to a call that has not completed yet", ref)
		}
		root = results[idx]
		rest = segments[2:]
	} else {
		name := segments[0]
		reply, ok := named[name]
		if !ok {
			return nil, opError("substitution reference %q names an unknown saved result %q", ref, name)
		}
		root = reply
		rest = segments[1:]
	}

	current := root
	for _, segment := range rest {
		next, err := navigate(current, segment)
		if err != nil {
			return nil, opError("substitution reference %q: %v", ref, err)
		}
		current = next
	}
	return current, nil
}

func navigate(current any, segment string) (any, error) {
	switch c := current.(type) {
	case map[string]any:
		v, ok := c[segment]
		if !ok {
			return nil, fmt.Errorf("no field %q", segment)
		}
		return v, nil
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("no element %q", segment)
		}
		return c[idx], nil
	default:
		return nil, fmt.Errorf("cannot navigate into a non-object, non-array value with %q", segment)
	}
}

// coerceToString renders a substitution value for substring
// replacement: strings pass through unchanged, everything else is
// rendered as compact JSON.
func coerceToString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}
