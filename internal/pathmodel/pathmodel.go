// Package pathmodel classifies mount-relative paths into the five classes
// spec.md §4.1 defines: root, a search directory, a result file, a
// control file, or invalid. It never touches the filesystem state itself
// (no lookups against a live ResultSet) — classification is purely
// syntactic, mirroring the segment-based style of rclone's backend/http
// parseName. Every rejected path yields the single Invalid class; no
// per-reason error is reported.
package pathmodel

import (
	"strings"
)

// Class identifies which of the five path shapes a path belongs to.
type Class int

const (
	// Invalid is any path that doesn't fit the two-level tree.
	Invalid Class = iota
	// Root is "/".
	Root
	// SearchDir is "/<query>".
	SearchDir
	// ResultFile is "/<query>/<name>" where name does not start with a space.
	ResultFile
	// ControlFile is "/<query>/<name>" where name starts with a space.
	ControlFile
)

// ControlAction names the pagination direction a control file triggers.
type ControlAction int

const (
	// ActionInvalid is a control-shaped name that isn't a recognized action.
	ActionInvalid ControlAction = iota
	// ActionNext pages forward.
	ActionNext
	// ActionPrev pages backward.
	ActionPrev
)

// Path is the classified result of Classify.
type Path struct {
	Class  Class
	Query  string
	Name   string // result file's name, or control file's raw name (with leading space)
	Action ControlAction
}

// Classify parses path (mount-relative, always starting with "/") into its
// Path class. A trailing slash is tolerated; more than two non-empty
// segments, or any filename lacking a parent directory, is Invalid.
func Classify(p string) Path {
	if p == "" || p[0] != '/' {
		return Path{Class: Invalid}
	}
	trimmed := strings.TrimSuffix(p, "/")
	if trimmed == "" {
		return Path{Class: Root}
	}
	segments := strings.Split(strings.TrimPrefix(trimmed, "/"), "/")
	for _, s := range segments {
		if s == "" {
			return Path{Class: Invalid}
		}
	}

	switch len(segments) {
	case 1:
		return Path{Class: SearchDir, Query: segments[0]}
	case 2:
		query, name := segments[0], segments[1]
		if isControlName(name) {
			return Path{
				Class:  ControlFile,
				Query:  query,
				Name:   name,
				Action: classifyAction(name),
			}
		}
		return Path{Class: ResultFile, Query: query, Name: StripExtension(name)}
	default:
		return Path{Class: Invalid}
	}
}

// isControlName reports whether name's first byte is an ASCII space, the
// marker spec.md §4.1 assigns to control files.
func isControlName(name string) bool {
	return len(name) > 0 && name[0] == ' '
}

func classifyAction(name string) ControlAction {
	switch strings.TrimPrefix(name, " ") {
	case "next":
		return ActionNext
	case "prev":
		return ActionPrev
	default:
		return ActionInvalid
	}
}

// recognizedExtensions are the media-type suffixes readdir may decorate a
// result name with; lookups strip any one of these before resolving a
// name, per spec.md §4.1.
var recognizedExtensions = []string{".m4a", ".webm", ".mp4", ".mkv", ".opus", ".mp3"}

// StripExtension removes a single trailing recognized media extension from
// name, if present, leaving it otherwise unchanged. It is the inverse of
// decorating a bare name for readdir.
func StripExtension(name string) string {
	for _, ext := range recognizedExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// ExtensionFor returns the recognized extension (including the leading
// dot) for a display name, or "" if it carries none of the recognized
// suffixes.
func ExtensionFor(name string) string {
	for _, ext := range recognizedExtensions {
		if strings.HasSuffix(name, ext) {
			return ext
		}
	}
	return ""
}

// Names for the two synthetic control files (spec.md §6: the leading
// space is part of the literal name).
const (
	ControlNext = " next"
	ControlPrev = " prev"
)
