package analysis

import "strings"

// securityPathPatterns mark files whose path alone makes them security code
var securityPathPatterns = []string{
	"auth", "security", "permission", "credential", "secrets", "middleware/acl", "rbac",
}

// securityKeywords indicate authentication or authorization logic
var securityKeywords = []string{
	"authenticate", "authorize", "login", "logout", "signin", "signout",
	"jwt", "oauth", "saml", "sso", "permission", "rbac", "acl",
	"bcrypt", "encrypt", "decrypt", "verifyToken", "csrf",
}

// securityMatches returns the path patterns and keywords found for a file
func securityMatches(filePath, content string) (paths, keywords []string) {
	lowerPath := strings.ToLower(filePath)
	for _, pattern := range securityPathPatterns {
		if strings.Contains(lowerPath, pattern) {
			paths = append(paths, pattern)
		}
	}
	for _, keyword := range securityKeywords {
		if containsKeyword(content, keyword) {
			keywords = append(keywords, keyword)
		}
	}
	return paths, keywords
}

// containsKeyword reports a case-insensitive match of keyword at a word
// boundary. An uppercase letter in the original text also counts as a
// boundary so "CheckPermission" matches "permission" but "processor" does
// not match "sso".
func containsKeyword(text, keyword string) bool {
	lowerText := strings.ToLower(text)
	lowerKeyword := strings.ToLower(keyword)
	if len(lowerText) != len(text) || lowerKeyword == "" {
		return strings.Contains(lowerText, lowerKeyword)
	}

	from := 0
	for from < len(lowerText) {
		idx := strings.Index(lowerText[from:], lowerKeyword)
		if idx < 0 {
			return false
		}
		idx += from
		end := idx + len(lowerKeyword)

		before := idx == 0 || !isLetter(text[idx-1]) || isUpper(text[idx])
		after := end >= len(text) || !isLetter(text[end]) || isUpper(text[end])
		if before && after {
			return true
		}
		from = idx + 1
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isUpper(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
