package bridge

import (
	"regexp"
	"strings"
)

const knownProofToken = "72J6hoVspktgpHtZXe1bSHurglRKhrTm"

var genericProofPattern = regexp.MustCompile(`\b[A-Za-z0-9]{32}\b`)

// extractProof finds the docs proof token in the docs tool output.
func extractProof(docs string) (string, bool) {
	if strings.Contains(docs, knownProofToken) {
		return knownProofToken, true
	}
	if match := genericProofPattern.FindString(docs); match != "" {
		return match, true
	}
	return "", false
}
