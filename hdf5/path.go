package hdf5

import (
	"fmt"
	"strings"
)

// CleanPath returns p with one leading slash and no trailing slash.
func CleanPath(p string) string {
	return "/" + strings.Trim(p, "/")
}

// SplitPath returns the non-empty components of p. The root has none.
func SplitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

// ParseAttrPath splits "object@attr" at the last '@'. An empty object path
// means the root group.
func ParseAttrPath(p string) (objectPath, attrName string, err error) {
	at := strings.LastIndexByte(p, '@')
	if at < 0 {
		return "", "", fmt.Errorf("%w: %q has no '@'", ErrInvalidPath, p)
	}
	if attrName = p[at+1:]; attrName == "" {
		return "", "", fmt.Errorf("%w: %q names no attribute", ErrInvalidPath, p)
	}
	return CleanPath(p[:at]), attrName, nil
}

// JoinAttrPath is the inverse of ParseAttrPath.
func JoinAttrPath(objectPath, attrName string) string {
	if objectPath = CleanPath(objectPath); objectPath == "/" {
		return "/@" + attrName
	}
	return objectPath + "@" + attrName
}
