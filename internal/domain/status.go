package domain

import "strings"

// statusAliases maps legacy workbook status labels to the canonical
// names the remote system uses. Unknown labels pass through untouched;
// the remote form phase is the final authority on what is accepted.
var statusAliases = map[string]string{
	"new":         "New",
	"open":        "In progress",
	"in progress": "In progress",
	"in arbeit":   "In progress",
	"wip":         "In progress",
	"done":        "Closed",
	"closed":      "Closed",
	"erledigt":    "Closed",
	"resolved":    "Closed",
	"on hold":     "On hold",
	"blocked":     "On hold",
}

// CanonicalStatus maps a legacy status label to its remote status name.
func CanonicalStatus(label string) string {
	key := strings.ToLower(strings.Join(strings.Fields(label), " "))
	if canonical, ok := statusAliases[key]; ok {
		return canonical
	}
	return strings.TrimSpace(label)
}

// StatusEqual compares two status labels after canonicalization,
// case-insensitively. Cosmetic casing differences between server
// versions are not mismatches.
func StatusEqual(a, b string) bool {
	return strings.EqualFold(CanonicalStatus(a), CanonicalStatus(b))
}
