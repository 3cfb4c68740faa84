package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// =============================================================================
// Discovery
// =============================================================================

// Discover scans appsDir and returns the names of all directories that carry
// a deployment descriptor, sorted. Files and descriptor-less directories are
// ignored. A missing apps directory is an error: it means the caller is
// pointed at the wrong repository, not that there are no applications.
func Discover(appsDir string) ([]string, error) {
	entries, err := os.ReadDir(appsDir)
	if err != nil {
		return nil, NewManifestError("", "", fmt.Sprintf("apps directory %s: %v", appsDir, err), ErrDescriptorNotFound)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(appsDir, entry.Name(), DescriptorFile)); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)
	return names, nil
}

// Roots builds the name -> repository-relative source root mapping for the
// given application names. appsRoot is the apps directory relative to the
// repository root, e.g. "apps". Roots always use forward slashes, matching
// version-control path output.
func Roots(appsRoot string, names []string) map[string]string {
	roots := make(map[string]string, len(names))
	for _, name := range names {
		roots[name] = path.Join(filepath.ToSlash(appsRoot), name)
	}
	return roots
}

// ValidateRoots rejects configurations where two applications resolve to the
// same source root. Nested roots are legal (the deeper root wins during
// change mapping); identical roots are not.
func ValidateRoots(roots map[string]string) error {
	seen := make(map[string]string, len(roots))
	for name, root := range roots {
		if other, ok := seen[root]; ok {
			// Map order is random; report the pair deterministically.
			a, b := name, other
			if a > b {
				a, b = b, a
			}
			return NewManifestError(a, "", fmt.Sprintf("root %s is also claimed by %s", root, b), ErrOverlappingRoots)
		}
		seen[root] = name
	}
	return nil
}
