package triage

import (
	"context"
	"time"

	"github.com/vinayprograms/tandem/errors"
	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/ratelimit"
)

// LimitedClassifier caps how often the wrapped classifier runs. When
// the budget is spent, Classify reports a rate-limit error and the
// engine routes the item to manual review instead of calling the
// provider.
type LimitedClassifier struct {
	inner Classifier
	lim   *ratelimit.Limiter
}

// NewLimitedClassifier allows perMinute classifications per minute.
func NewLimitedClassifier(inner Classifier, perMinute int) *LimitedClassifier {
	return &LimitedClassifier{
		inner: inner,
		lim:   ratelimit.New(perMinute, time.Minute),
	}
}

// Classify implements Classifier.
func (c *LimitedClassifier) Classify(ctx context.Context, it *item.Item, policy PolicyContext) (Decision, error) {
	if !c.lim.Allow() {
		return Decision{}, errors.RateLimited("classifier request budget exhausted")
	}
	return c.inner.Classify(ctx, it, policy)
}
