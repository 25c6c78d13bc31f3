package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vinayprograms/tandem/audit"
	"github.com/vinayprograms/tandem/claim"
	"github.com/vinayprograms/tandem/config"
	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/logging"
	"github.com/vinayprograms/tandem/notify"
	"github.com/vinayprograms/tandem/reconcile"
	"github.com/vinayprograms/tandem/runner"
	"github.com/vinayprograms/tandem/shutdown"
	"github.com/vinayprograms/tandem/status"
	"github.com/vinayprograms/tandem/triage"
	"github.com/vinayprograms/tandem/vault"
)

// Agent is one coordination agent instance: a set of isolated polling
// loops over a shared vault replica. The continuously available agent
// runs as the status writer; the intermittent one runs without the
// drain loop and proposes status updates through envelopes.
type Agent struct {
	cfg config.Config
	log *logging.Logger

	vault    *vault.Vault
	engine   *triage.Engine
	mgr      *claim.Manager
	queue    *status.Queue
	writer   *status.Writer
	auditLog *audit.Log
	rec      *reconcile.Reconciler
	notifier notify.Notifier

	adapters  map[string]Adapter
	executors map[item.Kind]Executor
}

// Option configures an Agent.
type Option func(*options)

type options struct {
	logger     *logging.Logger
	classifier triage.Classifier
	history    reconcile.History
	notifier   notify.Notifier
	adapters   map[string]Adapter
	executors  map[item.Kind]Executor
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClassifier sets the triage classifier. Without one every
// non-overridden item goes to manual review.
func WithClassifier(c triage.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithHistory sets the replication history. Without one the sync loop
// is disabled and the replica is local-only.
func WithHistory(h reconcile.History) Option {
	return func(o *options) { o.history = h }
}

// WithNotifier sets the audit event mirror.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithAdapter registers an ingestion adapter under its origin name.
func WithAdapter(origin string, a Adapter) Option {
	return func(o *options) { o.adapters[origin] = a }
}

// WithExecutor registers the executor for one item kind.
func WithExecutor(kind item.Kind, e Executor) Option {
	return func(o *options) { o.executors[kind] = e }
}

// New creates an agent from configuration.
func New(cfg config.Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{
		adapters:  map[string]Adapter{},
		executors: map[item.Kind]Executor{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.New()
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	log := o.logger.WithAgent(cfg.Agent)

	v, err := vault.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	// Audit partitions are per-agent so concurrent appends never land
	// in the same replicated file.
	auditLog, err := audit.NewLog(filepath.Join(cfg.Store, vault.AuditDir, cfg.Agent))
	if err != nil {
		return nil, err
	}

	rules, err := triage.LoadRules(cfg.RulesPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading triage rules: %w", err)
		}
		log.Info("no triage rules file, using defaults", map[string]interface{}{
			"path": cfg.RulesPath(),
		})
		rules = triage.DefaultRules()
	}

	mgr, err := claim.NewManager(v, cfg.Agent)
	if err != nil {
		return nil, err
	}

	queue, err := status.NewQueue(filepath.Join(cfg.Store, vault.EnvelopeDir))
	if err != nil {
		return nil, err
	}

	classifier := o.classifier
	if classifier != nil && cfg.Classifier.RequestsPerMinute > 0 {
		classifier = triage.NewLimitedClassifier(classifier, cfg.Classifier.RequestsPerMinute)
	}

	a := &Agent{
		cfg:       cfg,
		log:       log,
		vault:     v,
		engine:    triage.NewEngine(rules, classifier),
		mgr:       mgr,
		queue:     queue,
		auditLog:  auditLog,
		notifier:  o.notifier,
		adapters:  o.adapters,
		executors: o.executors,
	}
	if cfg.Writer {
		a.writer = status.NewWriter(filepath.Join(cfg.Store, vault.StatusFile), queue)
	}
	if o.history != nil {
		a.rec = reconcile.New(v, o.history, auditLog, log, reconcile.Config{
			AgentID:      cfg.Agent,
			Writer:       cfg.Writer,
			MaxRetries:   cfg.Sync.MaxRetries,
			RetryBackoff: cfg.Sync.Backoff.Std(),
		})
	}
	return a, nil
}

// Vault exposes the underlying store, mainly for inspection commands.
func (a *Agent) Vault() *vault.Vault {
	return a.vault
}

// loops builds this agent's consumer loops per its configuration.
func (a *Agent) loops() []*runner.Loop {
	var loops []*runner.Loop
	if len(a.adapters) > 0 {
		loops = append(loops, runner.New("ingest", a.ingestPass,
			runner.Config{Interval: a.cfg.Intervals.Ingest.Std()}, a.log))
	}
	loops = append(loops, runner.New("triage", a.triagePass,
		runner.Config{Interval: a.cfg.Intervals.Triage.Std()}, a.log))
	if len(a.executors) > 0 {
		loops = append(loops, runner.New("execute", a.executePass,
			runner.Config{Interval: a.cfg.Intervals.Claim.Std()}, a.log))
	}
	if a.rec != nil {
		loops = append(loops, runner.New("sync", a.syncPass,
			runner.Config{Interval: a.cfg.Intervals.Sync.Std()}, a.log))
	}
	if a.writer != nil {
		loops = append(loops, runner.New("drain", a.drainPass,
			runner.Config{Interval: a.cfg.Intervals.Drain.Std()}, a.log))
	}
	return loops
}

// Run starts every loop and blocks until the context is canceled, then
// shuts down in phases: loops first, a final envelope drain on the
// writer, the notifier last.
func (a *Agent) Run(ctx context.Context) error {
	claimed, executing, err := a.mgr.Stranded()
	if err != nil {
		return err
	}
	if len(claimed)+len(executing) > 0 {
		a.log.Info("re-adopting stranded items", map[string]interface{}{
			"claimed":   len(claimed),
			"executing": len(executing),
		})
	}

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()

	var wg sync.WaitGroup
	for _, l := range a.loops() {
		wg.Add(1)
		go func(l *runner.Loop) {
			defer wg.Done()
			l.Run(loopCtx) //nolint:errcheck
		}(l)
	}

	<-ctx.Done()
	stopLoops()
	wg.Wait()

	coord := shutdown.NewCoordinator(shutdown.Config{})
	if a.writer != nil {
		coord.RegisterFuncWithPhase("final-drain", func(ctx context.Context) error {
			_, err := a.writer.Drain()
			return err
		}, 1)
	}
	coord.RegisterFuncWithPhase("notifier", func(ctx context.Context) error {
		return a.notifier.Close()
	}, 2)
	if err := coord.ShutdownWithTimeout(30 * time.Second); err != nil {
		a.log.Warn("shutdown finished with errors", map[string]interface{}{
			"error": err.Error(),
		})
	}
	a.log.Info("agent stopped")
	return ctx.Err()
}

// Once runs a single pass of every consumer in pipeline order. The
// run-once surface for cron-style operation and tests.
func (a *Agent) Once(ctx context.Context) error {
	passes := []struct {
		name string
		pass runner.Pass
	}{
		{"ingest", a.ingestPass},
		{"triage", a.triagePass},
		{"execute", a.executePass},
		{"sync", a.syncPass},
		{"drain", a.drainPass},
	}
	for _, p := range passes {
		if err := p.pass(ctx); err != nil {
			return fmt.Errorf("%s pass: %w", p.name, err)
		}
	}
	return nil
}

// record appends an audit event and mirrors it to the notifier.
func (a *Agent) record(ev audit.Event) {
	ev.AgentID = a.cfg.Agent
	if err := a.auditLog.Append(ev); err != nil {
		a.log.Error("audit append failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := a.notifier.Publish(ev); err != nil {
		a.log.Debug("notify publish failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
