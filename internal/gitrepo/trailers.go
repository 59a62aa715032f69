package gitrepo

import (
	"strings"

	"rulehistory/internal/rules"
)

const (
	trailerDocument  = "Document"
	trailerPath      = "Path"
	trailerEffective = "Effective-Date"
	trailerSuffix    = "Version-Suffix"
)

// stamp is what a commit's trailers say about the version it records.
type stamp struct {
	Document rules.DocumentID
	Path     string
	Key      rules.Key
}

func (s stamp) trailers() string {
	lines := []string{
		trailerDocument + ": " + s.Document.String(),
		trailerPath + ": " + s.Path,
		trailerEffective + ": " + s.Key.Effective.String(),
	}
	if s.Key.Suffix != "" {
		lines = append(lines, trailerSuffix+": "+string(s.Key.Suffix))
	}
	return strings.Join(lines, "\n")
}

// withTrailers appends the trailer block as the final paragraph.
func withTrailers(message string, s stamp) string {
	return strings.TrimRight(message, "\n") + "\n\n" + s.trailers() + "\n"
}

// splitTrailers separates the body from a trailing block of "Key: value"
// lines. ok is false when the last paragraph is not a trailer block.
func splitTrailers(message string) (body string, trailers map[string]string, ok bool) {
	message = strings.TrimRight(message, "\n")
	idx := strings.LastIndex(message, "\n\n")
	if idx < 0 {
		return message, nil, false
	}
	block := message[idx+2:]
	trailers = make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		key, value, found := strings.Cut(line, ": ")
		if !found || key == "" || strings.ContainsAny(key, " \t") {
			return message, nil, false
		}
		trailers[key] = strings.TrimSpace(value)
	}
	return message[:idx], trailers, true
}

// parseStamp reads the version trailers of an engine commit. Commits without
// them, like the README commit, and commits whose trailers do not name a valid
// document, path and date return ok=false.
func parseStamp(message string) (stamp, bool) {
	_, trailers, ok := splitTrailers(message)
	if !ok {
		return stamp{}, false
	}
	path := trailers[trailerPath]
	if path == "" {
		return stamp{}, false
	}
	doc, err := rules.ParseDocumentID(trailers[trailerDocument])
	if err != nil {
		return stamp{}, false
	}
	effective, err := rules.ParseDate(trailers[trailerEffective])
	if err != nil {
		return stamp{}, false
	}
	return stamp{
		Document: doc,
		Path:     path,
		Key:      rules.Key{Effective: effective, Suffix: rules.Suffix(trailers[trailerSuffix])},
	}, true
}

func subject(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(line)
}
