package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Descriptor Constants
// =============================================================================

const (
	// DescriptorFile is the per-application deployment descriptor.
	DescriptorFile = "app.yml"

	// DefaultMainFile is assumed when the descriptor does not name one.
	DefaultMainFile = "streamlit_app.py"
)

// =============================================================================
// Application
// =============================================================================

// Application is one independently deployable unit discovered under the apps
// root. Values are immutable for the duration of one orchestrator run and
// re-discovered on every invocation.
type Application struct {
	// Name uniquely identifies the application. It doubles as the remote
	// object name, so it must be a valid identifier.
	Name string

	// Root is the application's source path relative to the repository root,
	// e.g. "apps/sales_dashboard".
	Root string

	// MainFile is the entrypoint file name within Root.
	MainFile string

	// Warehouse is the compute warehouse the deployed app should run on.
	// Empty means "use the configured default".
	Warehouse string

	// Schema is the remote namespace (database schema) the app object is
	// created in. Empty means "use the configured default".
	Schema string

	// Title is an optional human-readable display name.
	Title string

	// Comment is an optional description attached to the remote object.
	Comment string

	// Artifacts are optional extra paths (relative to Root) the app needs at
	// runtime, beyond the main file.
	Artifacts []string
}

// descriptor mirrors the on-disk YAML shape of app.yml.
type descriptor struct {
	Name      string   `yaml:"name"`
	MainFile  string   `yaml:"main_file"`
	Warehouse string   `yaml:"warehouse"`
	Schema    string   `yaml:"schema"`
	Title     string   `yaml:"title"`
	Comment   string   `yaml:"comment"`
	Artifacts []string `yaml:"artifacts"`
}

// =============================================================================
// Loading
// =============================================================================

// Load reads and validates the descriptor for the application directory at
// dir. root is the application's source path relative to the repository root
// (it is carried into the returned Application, not read from disk).
//
// The same directory contents always yield the same Application value; field
// order in the descriptor is irrelevant.
func Load(dir, root string) (Application, error) {
	app := filepath.Base(dir)

	data, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Application{}, NewManifestError(app, "", fmt.Sprintf("%s not found", DescriptorFile), ErrDescriptorNotFound)
		}
		return Application{}, NewManifestError(app, "", err.Error(), ErrInvalidFormat)
	}

	var d descriptor
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return Application{}, NewManifestError(app, "", err.Error(), ErrInvalidFormat)
	}

	if d.Name == "" {
		return Application{}, NewManifestError(app, "name", "descriptor must declare a name", ErrMissingField)
	}
	if !validName(d.Name) {
		return Application{}, NewManifestError(app, "name", fmt.Sprintf("%q is not a valid application name", d.Name), ErrInvalidFormat)
	}
	if d.Name != app {
		return Application{}, NewManifestError(app, "name", fmt.Sprintf("declared name %q does not match directory name", d.Name), ErrInvalidFormat)
	}

	mainFile := d.MainFile
	if mainFile == "" {
		mainFile = DefaultMainFile
	}
	if filepath.Base(mainFile) != mainFile {
		return Application{}, NewManifestError(app, "main_file", "main file must not contain path separators", ErrInvalidFormat)
	}
	if _, err := os.Stat(filepath.Join(dir, mainFile)); err != nil {
		return Application{}, NewManifestError(app, "main_file", fmt.Sprintf("%s does not exist", mainFile), ErrEntrypointNotFound)
	}

	// Artifacts are sorted so descriptor ordering does not leak into the value.
	artifacts := append([]string(nil), d.Artifacts...)
	sort.Strings(artifacts)

	return Application{
		Name:      d.Name,
		Root:      root,
		MainFile:  mainFile,
		Warehouse: d.Warehouse,
		Schema:    d.Schema,
		Title:     d.Title,
		Comment:   d.Comment,
		Artifacts: artifacts,
	}, nil
}

// validName reports whether name can be used as a remote object identifier.
// Letters, digits and underscores, starting with a letter.
func validName(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return name != "" && name[0] != '_'
}
