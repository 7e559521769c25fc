package schema

import (
	"strconv"
	"strings"
)

// TrunkBranch is the empty branch name; it designates the mainline.
const TrunkBranch = ""

// VendorBranchPrefix is the conventional branch number of the first vendor import.
const VendorBranchPrefix = "1.1.1"

// RevDepth returns the branch depth of a dotted revision identifier.
// Trunk revisions ("1.4") have depth 0, "1.4.2.3" has depth 1.
func RevDepth(rev string) int {
	if rev == "" {
		return 0
	}
	return (strings.Count(rev, ".") - 1) / 2
}

// BranchOf returns the branch number a revision lives on ("1.4.2.3" -> "1.4.2").
func BranchOf(rev string) string {
	i := strings.LastIndexByte(rev, '.')
	if i < 0 {
		return ""
	}
	return rev[:i]
}

// BranchPointOf returns the revision a branch revision sprouts from
// ("1.4.2.3" -> "1.4"). It returns "" for trunk revisions.
func BranchPointOf(rev string) string {
	if RevDepth(rev) == 0 {
		return ""
	}
	return BranchOf(BranchOf(rev))
}

// BranchPrefixPoint returns the sprouting revision of a branch number ("1.4.2" -> "1.4").
func BranchPrefixPoint(prefix string) string {
	return BranchOf(prefix)
}

// TrunkPointOf returns the trunk revision a branch or revision number ultimately
// sprouts from ("1.2.2.1.2" -> "1.2"). Trunk revisions are returned unchanged.
func TrunkPointOf(rev string) string {
	fields := strings.SplitN(rev, ".", 3)
	if len(fields) < 2 {
		return rev
	}
	return fields[0] + "." + fields[1]
}

// NormalizeSymbol turns the value of a symbolic name into either a branch
// number or a revision. The magic branch form "x.y.0.z" becomes "x.y.z".
// It reports true when the result designates a branch.
func NormalizeSymbol(value string) (string, bool) {
	fields := strings.Split(value, ".")
	if len(fields) >= 4 && fields[len(fields)-2] == "0" {
		fields = append(fields[:len(fields)-2], fields[len(fields)-1])
	}
	for _, f := range fields {
		if _, err := strconv.Atoi(f); err != nil {
			return "", false
		}
	}
	return strings.Join(fields, "."), len(fields)%2 == 1 && len(fields) >= 3
}

// IsVendorBranch reports whether a branch number denotes a vendor branch,
// i.e. an odd-numbered branch off revision 1.1.
func IsVendorBranch(prefix string) bool {
	fields := strings.Split(prefix, ".")
	if len(fields) != 3 || fields[0] != "1" || fields[1] != "1" {
		return false
	}
	n, err := strconv.Atoi(fields[2])
	return err == nil && n%2 == 1
}

// CompareRevs orders two revision identifiers numerically, component by component.
func CompareRevs(a, b string) int {
	fa := strings.Split(a, ".")
	fb := strings.Split(b, ".")
	for i := 0; i < len(fa) && i < len(fb); i++ {
		na, _ := strconv.Atoi(fa[i])
		nb, _ := strconv.Atoi(fb[i])
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(fa) < len(fb):
		return -1
	case len(fa) > len(fb):
		return 1
	}
	return 0
}
