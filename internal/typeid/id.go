package typeid

import (
	"fmt"
	"regexp"
	"strings"
)

// ID is the canonical identity of a type, e.g. "props.MapBag".
type ID string

// segmentRegex matches a single segment of an identity.
var segmentRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Parse validates rawID and returns it as an ID.
func Parse(rawID string) (ID, error) {
	if rawID == "" {
		return "", fmt.Errorf("type identity cannot be empty")
	}

	for _, segment := range strings.Split(rawID, ".") {
		if segment == "" {
			return "", fmt.Errorf("type identity %q contains empty segment", rawID)
		}
		if !segmentRegex.MatchString(segment) {
			return "", fmt.Errorf("invalid type identity segment %q in %q", segment, rawID)
		}
	}
	return ID(rawID), nil
}

// MustParse is like Parse but panics on error. Intended for package-level
// identities of built-in types.
func MustParse(rawID string) ID {
	id, err := Parse(rawID)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the identity as a plain string.
func (id ID) String() string { return string(id) }

// IsZero reports whether the identity is empty.
func (id ID) IsZero() bool { return id == "" }

// Name returns the last segment of the identity.
func (id ID) Name() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Package returns the segments before the name, or "" for a bare name.
func (id ID) Package() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return ""
}

// WithName returns the identity with its last segment replaced.
func (id ID) WithName(name string) ID {
	if pkg := id.Package(); pkg != "" {
		return ID(pkg + "." + name)
	}
	return ID(name)
}
