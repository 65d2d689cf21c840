package validate

import "strings"

// titleCase uppercases the first letter of each space-separated word and
// lowercases the rest, so "jOHN" and "john" both land as "John".
func titleCase(value string) string {
	if value == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(value))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func lowerCase(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func upperCase(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// cleanPhone keeps digits and separator characters only.
func cleanPhone(value string) string {
	var builder strings.Builder
	for _, r := range value {
		if (r >= '0' && r <= '9') || r == '-' || r == '+' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
