package agent

import "strings"

// ExtractSection returns the content between <tag> and </tag> in text,
// matched case-insensitively against the literal markers. Surrounding
// whitespace is trimmed and one layer of incidental code-fence
// decoration is stripped; the content itself is treated opaquely.
func ExtractSection(text, tag string) (string, bool) {
	open := strings.ToLower("<" + tag + ">")
	clos := strings.ToLower("</" + tag + ">")
	lower := strings.ToLower(text)

	lo := strings.Index(lower, open)
	if lo < 0 {
		return "", false
	}
	start := lo + len(open)
	hi := strings.Index(lower[start:], clos)
	if hi < 0 {
		return "", false
	}
	return stripFences(strings.TrimSpace(text[start : start+hi])), true
}

// ExtractSections extracts every requested tag present in text. Order
// of the tags in the text does not matter; sections must not nest.
func ExtractSections(text string, tags []string) map[string]string {
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		if content, ok := ExtractSection(text, tag); ok {
			out[tag] = content
		}
	}
	return out
}

// stripFences removes one wrapping fenced-code block, language hint
// included. Anything not shaped like a complete fence is returned as-is.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return s
	}
	body := s[nl+1:]
	end := strings.LastIndex(body, "```")
	if end < 0 {
		return s
	}
	return strings.TrimSpace(body[:end])
}
