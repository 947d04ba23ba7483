package records

import (
	"regexp"
	"strconv"
	"strings"
)

// versionSuffix matches the trailing numeric suffix of a version
// label, e.g. "_V0.8", "_1.1.2" or "_3.24.1a".
var versionSuffix = regexp.MustCompile(`_V?(\d+)(?:\.(\d+))?(?:\.(\d+[abcd]?))?$`)

// ParseVersionLabel extracts the (major, minor, patch) triplet from a
// version label's trailing numeric suffix. Labels without a suffix
// yield zeros with patch "0".
func ParseVersionLabel(label string) (major, minor int, patch string) {
	patch = "0"
	m := versionSuffix.FindStringSubmatch(label)
	if m == nil {
		return 0, 0, patch
	}
	major, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minor, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		patch = m[3]
	}
	return major, minor, patch
}

// CleanVersionLabel turns a raw feed label into its display form.
func CleanVersionLabel(label string) string {
	label = strings.TrimPrefix(label, "Star_Citizen_")
	return strings.ReplaceAll(label, "_", " ")
}

func formatMajorMinor(major, minor int) string {
	return strconv.Itoa(major) + "." + strconv.Itoa(minor)
}
