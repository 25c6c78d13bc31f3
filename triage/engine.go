package triage

import (
	"context"
	"fmt"

	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/security"
)

// Disposition is the closed triage outcome set.
type Disposition string

const (
	// DispositionApprove routes the item into the shared approved pool.
	DispositionApprove Disposition = "approve"

	// DispositionReject ends the item's active lifecycle.
	DispositionReject Disposition = "reject"

	// DispositionManual routes the item to human review.
	DispositionManual Disposition = "manual"
)

// TargetState maps the disposition to its lifecycle target.
func (d Disposition) TargetState() item.State {
	switch d {
	case DispositionApprove:
		return item.StateApproved
	case DispositionReject:
		return item.StateRejected
	default:
		return item.StateAwaitingApproval
	}
}

// Result is one complete triage decision.
type Result struct {
	// Domain is the resolved sphere of responsibility.
	Domain item.Domain

	// Disposition is the routing outcome.
	Disposition Disposition

	// Rationale explains the decision. Always populated.
	Rationale string

	// Forced is true when a hard override produced the disposition
	// without consulting the classifier.
	Forced bool
}

// Engine assigns domain and disposition to new items.
//
// Disposition is layered: hard overrides run first and entirely locally,
// so a network or classifier failure can never bypass a safety limit;
// then the pluggable classifier; a classifier error or unavailability
// defaults to manual review, never silent approval.
type Engine struct {
	rules      *Rules
	classifier Classifier
}

// NewEngine creates a triage engine. A nil classifier is allowed: every
// non-overridden item then goes to manual review.
func NewEngine(rules *Rules, classifier Classifier) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, classifier: classifier}
}

// Triage resolves domain and disposition for one item.
func (e *Engine) Triage(ctx context.Context, it *item.Item) Result {
	domain, domainWhy := e.rules.ResolveDomain(it)

	// Layer 1: hard overrides, evaluated locally before anything else.
	if amount, ok := it.Amount(); ok && e.rules.MaxAmount > 0 && amount > e.rules.MaxAmount {
		disposition := DispositionManual
		if e.rules.OverAmountAction == "reject" {
			disposition = DispositionReject
		}
		return Result{
			Domain:      domain,
			Disposition: disposition,
			Forced:      true,
			Rationale: fmt.Sprintf("amount %.2f exceeds threshold %.2f (%s); %s",
				amount, e.rules.MaxAmount, e.rules.OverAmountAction, domainWhy),
		}
	}

	// Untrusted payloads are screened before the model ever sees
	// them. A finding forces manual review.
	if f, found := security.Inspect(it.Field("subject") + "\n" + it.Body); found {
		return Result{
			Domain:      domain,
			Disposition: DispositionManual,
			Forced:      true,
			Rationale:   fmt.Sprintf("payload flagged (%s); %s", f.Rule, domainWhy),
		}
	}

	// Layer 2: the pluggable classifier.
	if e.classifier == nil {
		return Result{
			Domain:      domain,
			Disposition: DispositionManual,
			Rationale:   "no classifier configured; " + domainWhy,
		}
	}

	decision, err := e.classifier.Classify(ctx, it, PolicyContext{
		Domain:    domain,
		MaxAmount: e.rules.MaxAmount,
	})
	if err != nil {
		// Layer 3: failure defaults to manual, never silent approval.
		return Result{
			Domain:      domain,
			Disposition: DispositionManual,
			Rationale:   fmt.Sprintf("classifier unavailable (%v); deferred to human review", err),
		}
	}

	rationale := decision.Rationale
	if rationale == "" {
		rationale = "classifier gave no rationale"
	}
	return Result{
		Domain:      domain,
		Disposition: decision.Disposition,
		Rationale:   rationale + "; " + domainWhy,
	}
}
