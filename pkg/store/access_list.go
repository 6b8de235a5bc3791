package store

import "strings"

const accessListSeparator = ","

// normalizeUsers trims entries, drops empties, and removes case-insensitive
// duplicates while preserving the first-seen casing and order.
func normalizeUsers(users []string) []string {
	cleaned := make([]string, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for _, user := range users {
		user = strings.TrimSpace(user)
		if user == "" {
			continue
		}
		key := strings.ToLower(user)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, user)
	}
	return cleaned
}

// mergeAccessLists unions existing readers with the incoming list so that a
// re-share never silently revokes access granted earlier.
func mergeAccessLists(existing, incoming []string) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	merged = append(merged, incoming...)
	return normalizeUsers(merged)
}

func joinAccessList(users []string) string {
	return strings.Join(normalizeUsers(users), accessListSeparator)
}

func splitAccessList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return normalizeUsers(strings.Split(raw, accessListSeparator))
}
