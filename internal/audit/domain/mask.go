package domain

import "strings"

// MaskReference hides all but the last four characters of a processor
// reference, keeping its type prefix: pm_1Nabc9876 becomes pm_****9876.
func MaskReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	prefix := ""
	if i := strings.Index(ref, "_"); i > 0 && i < len(ref)-1 {
		prefix, ref = ref[:i+1], ref[i+1:]
	}
	if len(ref) <= 4 {
		return prefix + "****"
	}
	return prefix + "****" + ref[len(ref)-4:]
}
