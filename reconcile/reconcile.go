package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vinayprograms/tandem/audit"
	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/logging"
	"github.com/vinayprograms/tandem/vault"
)

// checkpointFile marks the last successfully reconciled history point.
// Dot-prefixed so it stays replica-local.
const checkpointFile = ".sync"

// Summary reports what one reconciliation pass did.
type Summary struct {
	// Published is true when local history points reached the remote.
	Published bool

	// Attempts counts publish attempts, including the successful one.
	Attempts int

	// Conflicts counts double-claims resolved this pass.
	Conflicts int

	// RemoteChanged is true when integration brought in remote work.
	RemoteChanged bool

	// Head is the history point recorded in the checkpoint.
	Head string
}

// Reconciler runs the periodic bidirectional exchange between this
// replica and the shared history. One pass commits local changes,
// integrates remote work, resolves any double-claims deterministically,
// and publishes, retrying a bounded number of times on divergence.
type Reconciler struct {
	vault   *vault.Vault
	history History
	audit   *audit.Log
	log     *logging.Logger
	cfg     Config
}

// New creates a reconciler for one replica.
func New(v *vault.Vault, h History, a *audit.Log, logger *logging.Logger, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if logger == nil {
		logger = logging.New()
	}
	return &Reconciler{
		vault:   v,
		history: h,
		audit:   a,
		log:     logger.WithComponent("reconcile"),
		cfg:     cfg,
	}
}

// Run executes one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	sum, err := r.run(ctx)
	pushed, pulled := 0, 0
	if sum.Published {
		pushed = 1
	}
	if sum.RemoteChanged {
		pulled = 1
	}
	r.log.SyncPass(time.Since(started), pushed, pulled, err)
	return sum, err
}

func (r *Reconciler) run(ctx context.Context) (Summary, error) {
	var sum Summary

	// The non-writer never carries direct status edits into history;
	// proposed updates travel as envelopes instead.
	if !r.cfg.Writer {
		dirty, err := r.history.Modified(ctx, vault.StatusFile)
		if err != nil {
			return sum, err
		}
		if dirty {
			r.log.Warn("discarding direct status edit on non-writer", map[string]interface{}{
				"agent_id": r.cfg.AgentID,
			})
			if err := r.history.Restore(ctx, vault.StatusFile); err != nil {
				return sum, err
			}
		}
	}

	message := fmt.Sprintf("sync: %s at %s", r.cfg.AgentID, time.Now().UTC().Format(time.RFC3339))
	committed, err := r.history.Commit(ctx, message)
	if err != nil {
		return sum, err
	}

	localHead, err := r.history.Head(ctx)
	if err != nil {
		return sum, err
	}

	// Pull phase: bring in remote work before publishing so every pass
	// sees the other agent's claims and transitions.
	if err := r.integrate(ctx, &sum); err != nil {
		return sum, err
	}
	head, err := r.history.Head(ctx)
	if err != nil {
		return sum, err
	}
	sum.RemoteChanged = head != localHead

	// Anything to publish? Ahead covers commits stranded by an earlier
	// failed publish: that pass aborted after committing, so retrying
	// here is what eventually drains them.
	ahead, err := r.history.Ahead(ctx)
	if err != nil {
		return sum, err
	}
	pending := committed || sum.Conflicts > 0 || ahead

	// The pass's own audit record rides inside the same publish, so an
	// idle pass leaves a clean tree and the two replicas go quiet
	// instead of committing each other's sync records forever.
	if pending && r.audit != nil {
		if err := r.audit.Append(audit.Event{
			Type:    audit.EventSync,
			AgentID: r.cfg.AgentID,
			Details: map[string]string{
				"conflicts": strconv.Itoa(sum.Conflicts),
				"pulled":    strconv.FormatBool(sum.RemoteChanged),
			},
		}); err != nil {
			return sum, err
		}
		if _, err := r.history.Commit(ctx, message); err != nil {
			return sum, err
		}
	}

	// Push phase with bounded retries. Divergence means the other agent
	// published between our integrate and publish; integrate again,
	// re-resolve, and retry. Never force.
	if pending {
		for sum.Attempts = 1; ; sum.Attempts++ {
			err := r.history.Publish(ctx)
			if err == nil {
				sum.Published = true
				break
			}
			if !errors.Is(err, ErrDiverged) {
				return sum, err
			}
			if sum.Attempts >= r.cfg.MaxRetries {
				return sum, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, sum.Attempts)
			}
			if err := r.sleep(ctx); err != nil {
				return sum, err
			}
			if err := r.integrate(ctx, &sum); err != nil {
				return sum, err
			}
		}
	}

	head, err = r.history.Head(ctx)
	if err != nil {
		return sum, err
	}
	sum.Head = head
	if err := r.writeCheckpoint(head); err != nil {
		return sum, err
	}
	return sum, nil
}

// integrate merges remote work and repairs the invariants the merge can
// break, committing any repair as part of the same pass.
func (r *Reconciler) integrate(ctx context.Context, sum *Summary) error {
	if err := r.history.Integrate(ctx); err != nil {
		return err
	}
	resolved, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	sum.Conflicts += resolved
	if resolved > 0 {
		msg := fmt.Sprintf("sync: %s resolved %d conflict(s)", r.cfg.AgentID, resolved)
		if _, err := r.history.Commit(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) sleep(ctx context.Context) error {
	select {
	case <-time.After(r.cfg.RetryBackoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stateRank orders duplicate copies of one item: the copy furthest
// along the lifecycle is authoritative, everything behind it is a stale
// leftover of the pre-merge divergence window.
var stateRank = map[item.State]int{
	item.StateNew:              0,
	item.StateAwaitingTriage:   1,
	item.StateAwaitingApproval: 2,
	item.StateApproved:         3,
	item.StateClaimed:          4,
	item.StateExecuting:        5,
	item.StateFailed:           6,
	item.StateRejected:         7,
	item.StateDone:             8,
}

// resolve scans the merged vault for items present in more than one
// location and removes all but the authoritative copy. Double-claims
// resolve by the claim rule: earlier claim decision wins, lexicographic
// agent ID as tie-break. Returns the number of double-claims resolved.
func (r *Reconciler) resolve(ctx context.Context) (int, error) {
	entries, err := r.vault.Scan()
	if err != nil {
		return 0, err
	}

	byID := map[string][]vault.Location{}
	ids := []string{}
	for _, e := range entries {
		if _, seen := byID[e.ID]; !seen {
			ids = append(ids, e.ID)
		}
		byID[e.ID] = append(byID[e.ID], e.Location)
	}
	sort.Strings(ids)

	conflicts := 0
	for _, id := range ids {
		locs := byID[id]
		if len(locs) < 2 {
			continue
		}
		n, err := r.resolveItem(id, locs)
		if err != nil {
			return conflicts, err
		}
		conflicts += n
	}
	return conflicts, nil
}

func (r *Reconciler) resolveItem(id string, locs []vault.Location) (int, error) {
	conflicts := 0

	// Double-claim: the same item in two agents' in-progress areas.
	var agentLocs []vault.Location
	for _, loc := range locs {
		if loc.State.AgentScoped() {
			agentLocs = append(agentLocs, loc)
		}
	}
	if distinctAgents(agentLocs) > 1 {
		winner, losers, err := r.claimWinner(id, agentLocs)
		if err != nil {
			return 0, err
		}
		for _, loser := range losers {
			dropped, err := r.dropClaim(id, winner, loser)
			if err != nil {
				return conflicts, err
			}
			if dropped {
				conflicts++
			}
			locs = without(locs, loser)
		}
	}

	// Any remaining duplicates are stale earlier-state copies left
	// behind by the union merge (approved alongside claimed, claimed
	// alongside done). The furthest-along copy wins.
	if len(locs) > 1 {
		sort.Slice(locs, func(i, j int) bool {
			ri, rj := stateRank[locs[i].State], stateRank[locs[j].State]
			if ri != rj {
				return ri > rj
			}
			return locs[i].String() < locs[j].String()
		})
		for _, stale := range locs[1:] {
			if err := r.vault.Remove(id, stale); err != nil {
				// The execute loop shares this process and may have
				// moved the copy between scan and removal.
				if errors.Is(err, vault.ErrMissing) {
					continue
				}
				return conflicts, err
			}
			r.log.Info("removed stale duplicate", map[string]interface{}{
				"item_id": id,
				"kept":    locs[0].String(),
				"removed": stale.String(),
			})
		}
	}
	return conflicts, nil
}

// claimWinner applies the claim-conflict rule across the competing
// agent-scoped copies: the claim with the earlier decision timestamp
// wins; equal timestamps fall back to the lexicographically smaller
// agent ID. A copy with no readable claim decision always loses to one
// that has one.
func (r *Reconciler) claimWinner(id string, locs []vault.Location) (vault.Location, []vault.Location, error) {
	type claimed struct {
		loc vault.Location
		at  time.Time
		ok  bool
	}
	cs := make([]claimed, 0, len(locs))
	for _, loc := range locs {
		c := claimed{loc: loc}
		if it, err := r.vault.Load(id, loc); err == nil {
			c.at, c.ok = it.ClaimedAt(loc.Agent)
		}
		cs = append(cs, c)
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].ok != cs[j].ok {
			return cs[i].ok
		}
		if cs[i].ok && !cs[i].at.Equal(cs[j].at) {
			return cs[i].at.Before(cs[j].at)
		}
		return cs[i].loc.Agent < cs[j].loc.Agent
	})

	losers := make([]vault.Location, 0, len(cs)-1)
	for _, c := range cs[1:] {
		losers = append(losers, c.loc)
	}
	return cs[0].loc, losers, nil
}

// dropClaim discards the losing copy and records the conflict. The
// losing agent discovers the disappearance on its next pass and aborts
// its in-flight work for this item. A copy already gone counts as
// resolved by someone else, not a conflict.
func (r *Reconciler) dropClaim(id string, winner, loser vault.Location) (bool, error) {
	if err := r.vault.Remove(id, loser); err != nil {
		if errors.Is(err, vault.ErrMissing) {
			return false, nil
		}
		return false, err
	}
	r.log.Conflict(id, winner.Agent, loser.Agent)
	if r.audit == nil {
		return true, nil
	}
	return true, r.audit.Append(audit.Event{
		Type:    audit.EventConflict,
		AgentID: r.cfg.AgentID,
		ItemID:  id,
		Details: map[string]string{
			"winner": winner.Agent,
			"loser":  loser.Agent,
		},
	})
}

// Checkpoint returns the last reconciled history point, or empty when
// no pass has completed yet.
func (r *Reconciler) Checkpoint() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.vault.Root(), checkpointFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *Reconciler) writeCheckpoint(head string) error {
	return os.WriteFile(filepath.Join(r.vault.Root(), checkpointFile), []byte(head+"\n"), 0644)
}

func distinctAgents(locs []vault.Location) int {
	agents := map[string]struct{}{}
	for _, loc := range locs {
		agents[loc.Agent] = struct{}{}
	}
	return len(agents)
}

func without(locs []vault.Location, drop vault.Location) []vault.Location {
	out := locs[:0]
	for _, loc := range locs {
		if loc != drop {
			out = append(out, loc)
		}
	}
	return out
}
