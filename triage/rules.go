package triage

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/tandem/item"
)

// Rules holds the local triage policy: domain keyword/sender rule sets
// and the hard overrides that are evaluated before anything leaves the
// process. Loaded from triage.toml.
type Rules struct {
	Personal DomainRules
	Business DomainRules

	// MaxAmount is the monetary threshold. Items whose amount field
	// exceeds it never reach the classifier.
	MaxAmount float64

	// OverAmountAction is what a threshold breach forces: "review"
	// (await human approval, the default) or "reject".
	OverAmountAction string
}

// DomainRules is one domain's keyword and sender rule set.
type DomainRules struct {
	Keywords []string
	Senders  []string
}

// tomlRules is the TOML representation.
type tomlRules struct {
	Personal struct {
		Keywords []string `toml:"keywords"`
		Senders  []string `toml:"senders"`
	} `toml:"personal"`
	Business struct {
		Keywords []string `toml:"keywords"`
		Senders  []string `toml:"senders"`
	} `toml:"business"`
	Overrides struct {
		MaxAmount float64 `toml:"max_amount"`
		Action    string  `toml:"over_amount_action"`
	} `toml:"overrides"`
}

// DefaultRules returns an empty rule set with review as the override action.
func DefaultRules() *Rules {
	return &Rules{OverAmountAction: "review"}
}

// LoadRules loads triage rules from a TOML file.
func LoadRules(path string) (*Rules, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(string(content))
}

// ParseRules parses triage rules from TOML content.
func ParseRules(content string) (*Rules, error) {
	var raw tomlRules
	if _, err := toml.Decode(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	r := &Rules{
		Personal:         DomainRules{Keywords: raw.Personal.Keywords, Senders: raw.Personal.Senders},
		Business:         DomainRules{Keywords: raw.Business.Keywords, Senders: raw.Business.Senders},
		MaxAmount:        raw.Overrides.MaxAmount,
		OverAmountAction: raw.Overrides.Action,
	}
	switch r.OverAmountAction {
	case "":
		r.OverAmountAction = "review"
	case "review", "reject":
	default:
		return nil, fmt.Errorf("unknown over_amount_action %q", r.OverAmountAction)
	}
	return r, nil
}

// score counts rule hits for one domain against the item's text and
// sender metadata. Keyword matching is case-insensitive substring;
// sender matching is case-insensitive substring on the sender field.
func (d DomainRules) score(it *item.Item) int {
	text := strings.ToLower(it.Field("subject") + "\n" + it.Body)
	sender := strings.ToLower(it.Field("sender"))

	n := 0
	for _, kw := range d.Keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			n++
		}
	}
	for _, s := range d.Senders {
		if s != "" && sender != "" && strings.Contains(sender, strings.ToLower(s)) {
			n++
		}
	}
	return n
}

// ResolveDomain scores the item against both rule sets. Zero or tied
// scores yield the shared domain.
func (r *Rules) ResolveDomain(it *item.Item) (item.Domain, string) {
	p := r.Personal.score(it)
	b := r.Business.score(it)
	switch {
	case p > b:
		return item.DomainPersonal, fmt.Sprintf("personal rules scored %d vs %d", p, b)
	case b > p:
		return item.DomainBusiness, fmt.Sprintf("business rules scored %d vs %d", b, p)
	default:
		return item.DomainShared, fmt.Sprintf("no decisive rule match (%d-%d)", p, b)
	}
}
