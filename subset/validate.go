package subset

import "unicode/utf8"

// maxNameLength bounds a single channel/group/presence name. The broker
// treats names as opaque short UTF-8 strings; this applies the same
// defensive length/encoding checks a topic filter validator would,
// minus any wildcard grammar since channel names here carry none.
const maxNameLength = 1024

// ValidationError reports why a name was rejected by Validate.
type ValidationError struct {
	message string
}

func (e *ValidationError) Error() string { return e.message }

// Validate checks that name is a well-formed channel, group, or presence
// channel identifier: non-empty, valid UTF-8, within the length bound, and
// free of NUL bytes. It does not reject or require the presence suffix —
// callers route on that separately via IsPresenceName.
func Validate(name string) error {
	if name == "" {
		return &ValidationError{"name cannot be empty"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{"name exceeds maximum length"}
	}
	if !utf8.ValidString(name) {
		return &ValidationError{"name contains invalid UTF-8"}
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return &ValidationError{"name cannot contain a null byte"}
		}
	}
	return nil
}
