// Package level decides whether the editor's currently loaded level
// corresponds to a requested target level. Editor APIs report levels in
// several shapes (bare name, package path, object path with a trailing
// ":PersistentLevel" style suffix), and unsaved levels get generated
// Untitled_N names, so a plain string compare is not enough.
package level

import (
	"strings"
)

// Policy selects which relaxed matching rules apply after the exact rules.
// Exact name and path equality always match.
type Policy struct {
	// TrailingSegment matches when the target is the final /-separated
	// segment of the current level's path.
	TrailingSegment bool
	// NamePrefix matches when the current level name begins with the
	// target name. Covers editor-generated suffixes on duplicated maps.
	NamePrefix bool
	// UntitledFamily treats any Untitled, Untitled_1, Untitled_2 ...
	// level as matching a target of "Untitled" (and vice versa).
	UntitledFamily bool
}

// DefaultPolicy enables all relaxed rules.
func DefaultPolicy() Policy {
	return Policy{TrailingSegment: true, NamePrefix: true, UntitledFamily: true}
}

// Matches reports whether current identifies the same level as target, and
// which rule decided it. Both arguments may be a bare name, a package path
// such as /Game/Maps/Arena, or an object path such as
// /Game/Maps/Arena.Arena.
func (p Policy) Matches(current, target string) (bool, string) {
	current = strings.TrimSpace(current)
	target = strings.TrimSpace(target)
	if current == "" || target == "" {
		return false, ""
	}

	if current == target {
		return true, "exact"
	}

	curName := baseName(current)
	tgtName := baseName(target)
	if curName == tgtName {
		return true, "name"
	}

	if packagePath(current) == packagePath(target) {
		return true, "package"
	}

	if p.TrailingSegment {
		if strings.HasSuffix(current, "/"+tgtName) || strings.HasSuffix(packagePath(current), "/"+tgtName) {
			return true, "trailing-segment"
		}
	}

	if p.NamePrefix && strings.HasPrefix(curName, tgtName) {
		return true, "name-prefix"
	}

	if p.UntitledFamily && isUntitled(curName) && isUntitled(tgtName) {
		return true, "untitled-family"
	}

	return false, ""
}

// baseName extracts the level name from any of the accepted shapes:
// "/Game/Maps/Arena.Arena:PersistentLevel" -> "Arena".
func baseName(ref string) string {
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		ref = ref[i+1:]
	}
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

// packagePath strips the object suffix: "/Game/Maps/Arena.Arena" ->
// "/Game/Maps/Arena". A bare name has no package path and is returned
// unchanged.
func packagePath(ref string) string {
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		ref = ref[:i]
	}
	return ref
}

// isUntitled reports whether name looks like an editor-generated unsaved
// level name: anything starting with "untitled", case-insensitive. The
// editor varies the suffix shape between versions, so no stricter form is
// assumed.
func isUntitled(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "untitled")
}
