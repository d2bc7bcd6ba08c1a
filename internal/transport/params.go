package transport

import (
	"pycomplete/internal/core/errors"
)

// Params are the named parameters of a request.
type Params map[string]any

// String returns the string under key, "" when absent.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidParam(key, "a string")
	}
	return s, nil
}

// Bool returns the boolean under key, false when absent.
func (p Params) Bool(key string) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidParam(key, "a boolean")
	}
	return b, nil
}

// Strings returns the string list under key. An absent or null member
// yields nil, which callers treat differently from an empty list.
func (p Params) Strings(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, invalidParam(key, "a list of strings")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, invalidParam(key, "a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func invalidParam(key, want string) error {
	return errors.New(errors.CodeValidationError, "param "+key+" must be "+want)
}
