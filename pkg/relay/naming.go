package relay

// HistoryNameLength is how much of the first prompt becomes the history name.
const HistoryNameLength = 25

// DeriveName returns the first HistoryNameLength characters of the prompt verbatim.
func DeriveName(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= HistoryNameLength {
		return prompt
	}
	return string(runes[:HistoryNameLength])
}
