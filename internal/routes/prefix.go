package routes

import "strings"

// underPrefix reports whether urlPath is prefix itself or lies in the subtree
// below it. Matching stops at segment boundaries, so /static does not cover
// /staticfile.
func underPrefix(urlPath, prefix string) bool {
	base := strings.TrimSuffix(prefix, "/")
	if base == "" {
		return true
	}
	return urlPath == base || strings.HasPrefix(urlPath, base+"/")
}

// trimPrefix returns the part of urlPath below prefix, starting with "/" or
// empty when urlPath names the prefix itself.
func trimPrefix(urlPath, prefix string) string {
	return strings.TrimPrefix(urlPath, strings.TrimSuffix(prefix, "/"))
}
