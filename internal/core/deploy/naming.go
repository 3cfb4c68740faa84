package deploy

import (
	"fmt"
	"strings"
)

// =============================================================================
// Remote Naming Functions
// =============================================================================

// ObjectName generates the schema-qualified remote object name for a target.
// Warehouse platforms fold unquoted identifiers to upper case, so the name is
// upper-cased up front to keep the identity stable across runs.
//
// Example:
//
//	ObjectName("APPS", "sales_dashboard") // returns "APPS.SALES_DASHBOARD"
func ObjectName(schema, app string) string {
	return fmt.Sprintf("%s.%s", strings.ToUpper(schema), strings.ToUpper(app))
}

// RootLocation generates the stage path the remote object's code is served
// from: the git mirror's checkout of the app root on the given branch.
//
// Example:
//
//	RootLocation("apps_repo", "main", "apps/alpha") // returns "@apps_repo/branches/main/apps/alpha/"
func RootLocation(repo, branch, root string) string {
	return fmt.Sprintf("@%s/branches/%s/%s/", repo, branch, strings.Trim(root, "/"))
}
