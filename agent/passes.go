package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/vinayprograms/tandem/audit"
	"github.com/vinayprograms/tandem/claim"
	"github.com/vinayprograms/tandem/errors"
	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/status"
	"github.com/vinayprograms/tandem/vault"
)

// ingestPass pulls new items from every adapter. Adapters fail in
// isolation: a failing source is logged (or escalated, for auth
// failures) and the rest of the pass proceeds.
func (a *Agent) ingestPass(ctx context.Context) error {
	var errs []error
	for origin, adapter := range a.adapters {
		items, err := adapter.Ingest(ctx)
		if err != nil {
			if errors.Is(err, errors.ErrCodeAuthFailed) {
				a.operatorAlert(origin, err)
				continue
			}
			a.log.Warn("adapter failed", map[string]interface{}{
				"origin": origin,
				"error":  err.Error(),
			})
			errs = append(errs, fmt.Errorf("adapter %s: %w", origin, err))
			continue
		}
		for _, it := range items {
			if err := a.ingestItem(origin, it); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}

func (a *Agent) ingestItem(origin string, it *item.Item) error {
	if it.Origin == "" {
		it.Origin = origin
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	it.State = item.StateNew

	if err := it.Validate(); err != nil {
		return a.quarantine(origin, it, err)
	}
	if a.cfg.DryRun {
		a.log.Info("dry-run: would ingest", map[string]interface{}{
			"item_id": it.ID,
			"origin":  origin,
		})
		return nil
	}

	it.Record("adapter:"+origin, "ingest", "")
	loc := vault.Location{State: item.StateNew, Domain: it.Domain}
	if err := a.vault.Create(it, loc); err != nil {
		if stderrors.Is(err, vault.ErrExists) {
			// Re-ingestion of a known item is success.
			return nil
		}
		return err
	}
	a.record(audit.Event{
		Type:   audit.EventTransition,
		ItemID: it.ID,
		To:     item.StateNew.String(),
		Actor:  "adapter:" + origin,
	})
	return nil
}

// quarantine routes an invalid payload to failed with the offending
// payload attached. Nothing is silently dropped.
func (a *Agent) quarantine(origin string, it *item.Item, cause error) error {
	if it.ID == "" {
		it.ID = item.DeriveID(origin, it.Body)
	}
	if it.Kind == "" {
		it.Kind = item.KindMessage
	}
	if it.Origin == "" {
		it.Origin = origin
	}
	it.State = item.StateFailed
	it.Record(a.cfg.Agent, "fail", "payload failed validation: "+cause.Error())

	if err := a.vault.Create(it, vault.Location{State: item.StateFailed}); err != nil {
		if stderrors.Is(err, vault.ErrExists) {
			return nil
		}
		return err
	}
	a.log.Warn("payload quarantined", map[string]interface{}{
		"item_id": it.ID,
		"origin":  origin,
		"error":   cause.Error(),
	})
	a.record(audit.Event{
		Type:      audit.EventError,
		ItemID:    it.ID,
		To:        item.StateFailed.String(),
		Rationale: cause.Error(),
	})
	return nil
}

// operatorAlert escalates a fatal adapter condition as a human-visible
// item in the review queue. The adapter is never silently disabled.
func (a *Agent) operatorAlert(origin string, cause error) {
	id := item.DeriveID("system", "auth-failure:"+origin)
	alert := &item.Item{
		ID:        id,
		Kind:      item.KindOperatorAlert,
		Domain:    item.DomainShared,
		State:     item.StateAwaitingApproval,
		Origin:    "system",
		CreatedAt: time.Now().UTC(),
		Fields: map[string]string{
			"subject": fmt.Sprintf("adapter %s: authentication failed", origin),
			"adapter": origin,
		},
		Body: cause.Error(),
	}
	alert.Record(a.cfg.Agent, "ingest", "fatal adapter condition escalated")

	if err := a.vault.Create(alert, vault.Location{State: item.StateAwaitingApproval}); err != nil {
		if !stderrors.Is(err, vault.ErrExists) {
			a.log.Error("escalation failed", map[string]interface{}{
				"origin": origin,
				"error":  err.Error(),
			})
		}
		return
	}
	a.log.Error("adapter authentication failed, escalated to review", map[string]interface{}{
		"origin":  origin,
		"item_id": id,
	})
	a.record(audit.Event{
		Type:      audit.EventError,
		ItemID:    id,
		Rationale: cause.Error(),
		Details:   map[string]string{"origin": origin},
	})
	a.proposeStatus(alert, "needs operator attention")
}

// triagePass promotes new arrivals into the triage queue, then assigns
// each queued item a domain and disposition.
func (a *Agent) triagePass(ctx context.Context) error {
	for _, d := range []item.Domain{item.DomainPersonal, item.DomainBusiness, item.DomainShared} {
		loc := vault.Location{State: item.StateNew, Domain: d}
		ids, err := a.vault.List(loc)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if a.cfg.DryRun {
				continue
			}
			if _, err := a.vault.Advance(id, loc, vault.Location{State: item.StateAwaitingTriage}, a.cfg.Agent, ""); err != nil {
				if stderrors.Is(err, vault.ErrMissing) {
					continue
				}
				return err
			}
		}
	}

	queue := vault.Location{State: item.StateAwaitingTriage}
	ids, err := a.vault.List(queue)
	if err != nil {
		return err
	}
	for _, id := range ids {
		it, err := a.vault.Load(id, queue)
		if err != nil {
			if stderrors.Is(err, vault.ErrMissing) {
				continue
			}
			return err
		}

		res := a.engine.Triage(ctx, it)
		if a.cfg.DryRun {
			a.log.Info("dry-run: triage decision", map[string]interface{}{
				"item_id":     id,
				"domain":      string(res.Domain),
				"disposition": string(res.Disposition),
				"rationale":   res.Rationale,
			})
			continue
		}

		// Persist the resolved domain before the move so the record
		// carries it into the next state.
		it.Domain = res.Domain
		if err := a.vault.Update(it, queue); err != nil {
			if stderrors.Is(err, vault.ErrMissing) {
				continue
			}
			return err
		}

		to := vault.Location{State: res.Disposition.TargetState()}
		if _, err := a.vault.Advance(id, queue, to, a.cfg.Agent, res.Rationale); err != nil {
			if stderrors.Is(err, vault.ErrMissing) {
				continue
			}
			return err
		}
		a.record(audit.Event{
			Type:      audit.EventTriage,
			ItemID:    id,
			From:      item.StateAwaitingTriage.String(),
			To:        to.State.String(),
			Actor:     a.cfg.Agent,
			Rationale: res.Rationale,
			Details: map[string]string{
				"domain":      string(res.Domain),
				"disposition": string(res.Disposition),
				"forced":      fmt.Sprintf("%t", res.Forced),
			},
		})
		it.Domain = res.Domain
		it.State = to.State
		a.proposeStatus(it, string(res.Disposition)+": "+res.Rationale)
	}
	return nil
}

// executePass is the claim-manager's executor-facing consumer: it
// re-adopts this agent's stranded items first, then claims new approved
// work it has an executor for.
func (a *Agent) executePass(ctx context.Context) error {
	if len(a.executors) == 0 {
		return nil
	}

	claimed, executing, err := a.mgr.Stranded()
	if err != nil {
		return err
	}
	for _, id := range executing {
		if err := a.executeOne(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range claimed {
		if err := a.beginAndExecute(ctx, id); err != nil {
			return err
		}
	}

	pool := vault.Location{State: item.StateApproved}
	ids, err := a.vault.List(pool)
	if err != nil {
		return err
	}
	for _, id := range ids {
		it, err := a.vault.Load(id, pool)
		if err != nil {
			if stderrors.Is(err, vault.ErrMissing) {
				continue
			}
			return err
		}
		if _, ok := a.executors[it.Kind]; !ok {
			continue
		}
		if a.cfg.DryRun {
			a.log.Info("dry-run: would claim", map[string]interface{}{
				"item_id": id,
			})
			continue
		}

		if _, err := a.mgr.Claim(id); err != nil {
			if stderrors.Is(err, vault.ErrMissing) {
				// Taken by the other agent. A valid outcome.
				continue
			}
			return err
		}
		a.log.Claimed(id, a.cfg.Agent)
		a.record(audit.Event{
			Type:   audit.EventClaim,
			ItemID: id,
			Actor:  a.cfg.Agent,
		})
		if err := a.beginAndExecute(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) beginAndExecute(ctx context.Context, id string) error {
	if _, err := a.mgr.Begin(id); err != nil {
		if stderrors.Is(err, vault.ErrMissing) {
			// The claim was lost at reconciliation; abort this work.
			a.log.Warn("claim lost, aborting", map[string]interface{}{
				"item_id": id,
			})
			return nil
		}
		return err
	}
	return a.executeOne(ctx, id)
}

func (a *Agent) executeOne(ctx context.Context, id string) error {
	loc := vault.Location{State: item.StateExecuting, Agent: a.cfg.Agent}
	it, err := a.vault.Load(id, loc)
	if err != nil {
		if stderrors.Is(err, vault.ErrMissing) {
			a.log.Warn("claim lost, aborting", map[string]interface{}{
				"item_id": id,
			})
			return nil
		}
		return err
	}
	exec, ok := a.executors[it.Kind]
	if !ok {
		// Re-adopted an item we no longer execute; leave it in place
		// for the operator.
		return nil
	}

	outcome, execErr := exec.Execute(ctx, it)
	reason := ""
	if execErr != nil {
		outcome = claim.OutcomeFailed
		reason = execErr.Error()
	}
	if outcome != claim.OutcomeDone && outcome != claim.OutcomeFailed {
		outcome = claim.OutcomeFailed
		reason = "executor returned unknown outcome"
	}

	released, err := a.mgr.Release(id, outcome, reason)
	if err != nil {
		if stderrors.Is(err, vault.ErrMissing) {
			a.log.Warn("claim lost during execution, result discarded", map[string]interface{}{
				"item_id": id,
			})
			return nil
		}
		return err
	}
	a.record(audit.Event{
		Type:      audit.EventTransition,
		ItemID:    id,
		From:      item.StateExecuting.String(),
		To:        released.State.String(),
		Actor:     a.cfg.Agent,
		Rationale: reason,
	})
	note := "completed"
	if outcome == claim.OutcomeFailed {
		note = "failed: " + reason
	}
	a.proposeStatus(released, note)
	return nil
}

// syncPass runs one reconciliation and prunes expired audit partitions.
func (a *Agent) syncPass(ctx context.Context) error {
	if a.rec == nil {
		return nil
	}
	if _, err := a.rec.Run(ctx); err != nil {
		return err
	}
	removed, err := a.auditLog.Purge(a.cfg.Retention.Audit.Std())
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		a.log.Info("purged audit partitions", map[string]interface{}{
			"partitions": len(removed),
		})
	}
	if a.cfg.Writer {
		swept, err := a.vault.SweepTerminal(a.cfg.Retention.Items.Std(), time.Now().UTC())
		if err != nil {
			return err
		}
		if len(swept) > 0 {
			a.log.Info("swept expired terminal items", map[string]interface{}{
				"items": len(swept),
			})
		}
	}
	return nil
}

// drainPass folds pending envelopes into the status artifact. Writer
// only.
func (a *Agent) drainPass(ctx context.Context) error {
	if a.writer == nil {
		return nil
	}
	n, err := a.writer.Drain()
	if err != nil {
		return err
	}
	if n > 0 {
		a.log.Debug("drained envelopes", map[string]interface{}{
			"count": n,
		})
	}
	return nil
}

// proposeStatus queues a status update for this item. On the writer the
// envelope is folded by its own drain loop; on the non-writer it rides
// the next sync to the writer.
func (a *Agent) proposeStatus(it *item.Item, note string) {
	env := status.Envelope{
		Producer: a.cfg.Agent,
		ItemID:   it.ID,
		Section:  sectionFor(it.Kind),
		Body:     statusLine(it, note),
	}
	if _, err := a.queue.Append(env); err != nil {
		a.log.Error("status envelope append failed", map[string]interface{}{
			"item_id": it.ID,
			"error":   err.Error(),
		})
	}
}

func sectionFor(k item.Kind) string {
	switch k {
	case item.KindMessage:
		return "Inbox"
	case item.KindScheduled:
		return "Calendar"
	case item.KindLedgerAlert:
		return "Ledger"
	case item.KindContentDraft:
		return "Drafts"
	case item.KindOperatorAlert:
		return "Alerts"
	default:
		return "Other"
	}
}

func statusLine(it *item.Item, note string) string {
	subject := it.Field("subject")
	if subject == "" {
		subject = string(it.Kind)
	}
	return fmt.Sprintf("- **%s** %s - %s (%s)", it.ID, subject, note, it.State)
}
