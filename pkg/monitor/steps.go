package monitor

import (
	"regexp"
)

// Failure messages conventionally embed the failing step as
// "DETENIDO EN: [step]" or "FALLO EN: [step]".
var stepPattern = regexp.MustCompile(
	`DETENIDO EN: \[(.*?)\]|FALLO EN: \[(.*?)\]`,
)

// ExtractFailedStep pulls the failing step name out of a free-text run
// message. It is best-effort enrichment over an informal convention; a
// false return means the message carried no recognizable step marker and
// callers should not treat that as an error.
func ExtractFailedStep(message string) (string, bool) {
	if message == "" {
		return "", false
	}

	m := stepPattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}

	if m[1] != "" {
		return m[1], true
	}

	if m[2] != "" {
		return m[2], true
	}

	return "", false
}
