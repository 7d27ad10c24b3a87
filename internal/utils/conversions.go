package utils

import "strings"

// SplitScope turns a space delimited scope string into its individual scopes.
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}

// JoinScope is the inverse of SplitScope.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ContainsAll reports whether every element of subset is present in set.
func ContainsAll(set, subset []string) bool {
	lookup := make(map[string]struct{}, len(set))
	for _, s := range set {
		lookup[s] = struct{}{}
	}
	for _, s := range subset {
		if _, ok := lookup[s]; !ok {
			return false
		}
	}
	return true
}

func Contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
