package stats

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// FilterByPrefix returns the entries of all whose key starts with prefix.
// An empty prefix returns a copy of all.
func FilterByPrefix(all map[string]interface{}, prefix string) map[string]interface{} {
	filtered := make(map[string]interface{})
	for key, value := range all {
		if len(prefix) == 0 || startsWith(key, prefix) {
			filtered[key] = value
		}
	}
	return filtered
}

// startsWith checks if a string starts with a prefix
func startsWith(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return s[:len(prefix)] == prefix
}
