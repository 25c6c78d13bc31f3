package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/llm"
)

// PolicyContext is the policy state handed to the classifier alongside
// the item.
type PolicyContext struct {
	Domain    item.Domain
	MaxAmount float64
}

// Decision is a classifier verdict.
type Decision struct {
	Disposition Disposition
	Rationale   string
}

// Classifier is the narrow interface the triage engine consumes. The
// rest of the system never depends on any classifier-specific shape.
type Classifier interface {
	// Classify returns a disposition and rationale for the item.
	// An error means the classifier could not decide; the engine
	// treats that as manual review.
	Classify(ctx context.Context, it *item.Item, policy PolicyContext) (Decision, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, it *item.Item, policy PolicyContext) (Decision, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, it *item.Item, policy PolicyContext) (Decision, error) {
	return f(ctx, it, policy)
}

const classifierSystemPrompt = `You review incoming work items for a personal operations assistant.
For each item decide one of exactly three dispositions:
  approve - routine and safe to act on automatically
  reject  - unwanted, spam, or clearly not actionable
  manual  - anything ambiguous, consequential, or involving money

Reply with the disposition word on the first line, then one short
sentence of rationale on the second line. Nothing else.`

// ModelClassifier implements Classifier on top of an llm.Provider.
type ModelClassifier struct {
	provider llm.Provider
}

// NewModelClassifier creates a classifier backed by the given provider.
func NewModelClassifier(provider llm.Provider) *ModelClassifier {
	return &ModelClassifier{provider: provider}
}

// Classify implements the Classifier interface.
func (c *ModelClassifier) Classify(ctx context.Context, it *item.Item, policy PolicyContext) (Decision, error) {
	resp, err := c.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: c.buildPrompt(it, policy)},
		},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("classifier call failed: %w", err)
	}
	return parseVerdict(resp.Content)
}

// buildPrompt renders the item for the model. The opaque body is
// truncated; the model sees metadata first.
func (c *ModelClassifier) buildPrompt(it *item.Item, policy PolicyContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "kind: %s\n", it.Kind)
	fmt.Fprintf(&b, "domain: %s\n", policy.Domain)
	fmt.Fprintf(&b, "origin: %s\n", it.Origin)
	for _, f := range []string{"sender", "subject", "amount"} {
		if v := it.Field(f); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", f, v)
		}
	}
	body := it.Body
	if len(body) > 2000 {
		body = body[:2000] + "\n[truncated]"
	}
	if body != "" {
		fmt.Fprintf(&b, "\n%s\n", body)
	}
	return b.String()
}

// parseVerdict maps free-form model output onto the closed disposition
// enum. Unparseable output is an error, which the engine turns into
// manual review.
func parseVerdict(content string) (Decision, error) {
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	verdict := strings.ToLower(strings.TrimSpace(strings.Trim(lines[0], ".:")))

	var rationale string
	if len(lines) > 1 {
		rationale = strings.TrimSpace(lines[1])
	}

	switch verdict {
	case "approve", "approved":
		return Decision{Disposition: DispositionApprove, Rationale: rationale}, nil
	case "reject", "rejected":
		return Decision{Disposition: DispositionReject, Rationale: rationale}, nil
	case "manual", "review":
		return Decision{Disposition: DispositionManual, Rationale: rationale}, nil
	default:
		return Decision{}, fmt.Errorf("unrecognized classifier verdict %q", lines[0])
	}
}
