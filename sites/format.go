package sites

import (
	"regexp"
	"strings"
)

var (
	groupPattern    = regexp.MustCompile(`[A-Z]+|[0-9]+`)
	nonAlnumPattern = regexp.MustCompile(`[^A-Z0-9]+`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// splitPlate separates a plate like "30A-12345" into its prefix and
// suffix. A space works as the separator when the dash is missing;
// without either the whole value becomes the prefix.
func splitPlate(plate string) (prefix, suffix string) {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	if i := strings.Index(plate, "-"); i >= 0 {
		return strings.TrimSpace(plate[:i]), strings.TrimSpace(plate[i+1:])
	}
	if fields := strings.Fields(plate); len(fields) > 1 {
		return fields[0], strings.Join(fields[1:], "")
	}
	return plate, ""
}

// wrapPercent wraps a trimmed value in % wildcards.
func wrapPercent(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return "%" + v + "%"
}

// percentGroups splits letter runs and digit runs and joins them with %
// wildcards so the portals' LIKE-style search matches regardless of the
// separators the user typed: "AB 123" becomes "%AB%123%".
func percentGroups(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	groups := groupPattern.FindAllString(v, -1)
	if len(groups) == 0 {
		return "%" + v + "%"
	}
	return "%" + strings.Join(groups, "%") + "%"
}

// suffixGroups breaks a plate suffix into match groups. A dotted suffix
// splits on the dots; otherwise anything beyond three characters splits
// after the third, matching how the portals store serials.
func suffixGroups(suffix string) []string {
	suffix = strings.ToUpper(strings.TrimSpace(suffix))
	if strings.Contains(suffix, ".") {
		var groups []string
		for _, part := range strings.Split(suffix, ".") {
			if part = nonAlnumPattern.ReplaceAllString(part, ""); part != "" {
				groups = append(groups, part)
			}
		}
		return groups
	}
	clean := nonAlnumPattern.ReplaceAllString(suffix, "")
	if clean == "" {
		return nil
	}
	if len(clean) > 3 {
		return []string{clean[:3], clean[3:]}
	}
	return []string{clean}
}

// platePatternP1 builds the first search box value for split-field plate
// forms: the prefix as %-joined letter/digit groups.
func platePatternP1(prefix string) string {
	return percentGroups(prefix)
}

// platePatternP2 builds the second search box value from the suffix.
func platePatternP2(suffix string) string {
	groups := suffixGroups(suffix)
	if len(groups) == 0 {
		return "%"
	}
	return "%" + strings.Join(groups, "%") + "%"
}

// platePattern builds a single-box pattern covering the whole plate.
func platePattern(plate string) string {
	prefix, suffix := splitPlate(plate)
	groups := groupPattern.FindAllString(strings.ToUpper(prefix), -1)
	if len(groups) == 0 && prefix != "" {
		groups = []string{prefix}
	}
	groups = append(groups, suffixGroups(suffix)...)
	if len(groups) == 0 {
		return "%"
	}
	return "%" + strings.Join(groups, "%") + "%"
}

// normalizeSerial uppercases a certificate serial and strips all
// whitespace, the form URL-keyword portals expect.
func normalizeSerial(serial string) string {
	return spacePattern.ReplaceAllString(strings.ToUpper(strings.TrimSpace(serial)), "")
}
