// Package changes maps changed version-control paths to application names.
// This is part of the Functional Core - all functions are pure with no I/O.
// The list of changed paths itself comes from the vcs adapter in the shell.
package changes

import (
	"sort"
	"strings"
)

// =============================================================================
// Path -> Application Mapping
// =============================================================================

// MapChangedPaths returns the sorted set of application names that own at
// least one of the changed paths. roots maps application name to its
// repository-relative source root (forward slashes, no trailing slash).
//
// Rules:
//   - Added, modified, deleted and renamed paths all count the same; the
//     caller supplies both sides of a rename as separate paths.
//   - A path outside every known root is ignored.
//   - When roots nest, the longest matching root wins, so a change inside an
//     inner application does not also select the outer one.
//   - Each application appears at most once regardless of how many of its
//     paths changed.
func MapChangedPaths(paths []string, roots map[string]string) []string {
	selected := make(map[string]struct{})

	for _, p := range paths {
		if name, ok := owner(p, roots); ok {
			selected[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(selected))
	for name := range selected {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// owner finds the application whose root contains path, preferring the
// longest (most specific) root.
func owner(path string, roots map[string]string) (string, bool) {
	var (
		best    string
		bestLen = -1
	)
	for name, root := range roots {
		if !underRoot(path, root) {
			continue
		}
		if len(root) > bestLen {
			best, bestLen = name, len(root)
		}
	}
	return best, bestLen >= 0
}

// underRoot reports whether path is the root itself or a file beneath it.
// Plain prefix matching would make "apps/alpha2/x" match root "apps/alpha".
func underRoot(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+"/")
}
