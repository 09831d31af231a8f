package discovery

import (
	"path"
	"strings"
)

// SuffixRule maps a lowercase filename suffix to an object type.
type SuffixRule struct {
	Suffix string
	Type   string
}

// ObjectTypes is checked in order; compound suffixes come before the plain
// extensions they end with.
var ObjectTypes = []SuffixRule{
	{".codeunit.al", "codeunit"},
	{".tableext.al", "table_extension"},
	{".table.al", "table"},
	{".pageext.al", "page_extension"},
	{".page.al", "page"},
	{".report.al", "report"},
	{".query.al", "query"},
	{".xmlport.al", "xmlport"},
	{".enumext.al", "enum_extension"},
	{".enum.al", "enum"},
	{".interface.al", "interface"},
	{".permissionset.al", "permission_set"},
	{".al", "al"},
	{"_test.go", "go_test"},
	{".go", "go"},
	{".test.ts", "ts_test"},
	{".spec.ts", "ts_test"},
	{".d.ts", "ts_declaration"},
	{".tsx", "tsx"},
	{".ts", "typescript"},
	{".js", "javascript"},
	{".py", "python"},
	{".cs", "csharp"},
	{".java", "java"},
	{".sql", "sql"},
	{".yaml", "yaml"},
	{".yml", "yaml"},
	{".json", "json"},
	{".md", "markdown"},
}

// ObjectType returns the type of the first matching rule, or "" when none match.
func ObjectType(p string) string {
	name := strings.ToLower(path.Base(p))
	for _, r := range ObjectTypes {
		if strings.HasSuffix(name, r.Suffix) {
			return r.Type
		}
	}
	return ""
}
