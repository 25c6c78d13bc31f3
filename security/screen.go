// Package security screens item payloads before they reach the model
// classifier.
//
// Ingested content is untrusted. A payload that tries to steer the
// classifier (instruction overrides, prompt extraction) or that looks
// like it carries credentials or an encoded blob is flagged; triage
// treats a flag as a hard override and routes the item to manual
// review without ever showing it to the model.
package security

import (
	"regexp"
	"strings"
)

// Finding names the rule a payload tripped.
type Finding struct {
	Rule    string
	Excerpt string
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

var injectionPatterns = []pattern{
	{"instruction-override", regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(previous|above|prior|all|everything)`)},
	{"policy-tamper", regexp.MustCompile(`(?i)(update|change|modify|override|supersede)\s+(the\s+)?(policy|rule|instruction)`)},
	{"prompt-extraction", regexp.MustCompile(`(?i)(reveal|show|print|display)\s+(your\s+)?(system\s+)?prompt`)},
	{"remote-execution", regexp.MustCompile(`(?i)(curl|wget)\s+\S+\s*\|\s*(ba)?sh`)},
}

var credentialKeywords = []string{
	"api_key",
	"api-key",
	"apikey",
	"password",
	"private_key",
	"access_token",
	"credential",
}

const excerptLen = 60

// Inspect screens one payload. It reports the first finding; absence
// of a finding means the content may be classified normally.
func Inspect(content string) (Finding, bool) {
	for _, p := range injectionPatterns {
		if loc := p.re.FindStringIndex(content); loc != nil {
			return Finding{Rule: p.name, Excerpt: excerpt(content, loc[0])}, true
		}
	}
	lowered := strings.ToLower(content)
	for _, kw := range credentialKeywords {
		if idx := strings.Index(lowered, kw); idx >= 0 {
			return Finding{Rule: "credential-material", Excerpt: excerpt(content, idx)}, true
		}
	}
	if seg, ok := encodedSegment(content); ok {
		return Finding{Rule: "encoded-payload", Excerpt: excerpt(seg, 0)}, true
	}
	return Finding{}, false
}

var base64Segment = regexp.MustCompile(`[A-Za-z0-9+/_\-]{50,}={0,2}`)

// encodedSegment looks for long high-entropy runs that decode-and-obey
// tricks hide behind.
func encodedSegment(content string) (string, bool) {
	for _, seg := range base64Segment.FindAllString(content, -1) {
		if IsHighEntropy([]byte(seg)) {
			return seg, true
		}
	}
	return "", false
}

func excerpt(s string, from int) string {
	end := from + excerptLen
	if end > len(s) {
		end = len(s)
	}
	return s[from:end]
}
