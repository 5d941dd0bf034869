// Package turn drives the simulation cycle: collect intents from every actor in parallel, resolve
// them with one arbiter call, apply the resolution to the world, then let each actor update its
// memory in turn.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/thicket/internal/contracts"
	"github.com/antoniostano/thicket/internal/extract"
	"github.com/antoniostano/thicket/internal/memory"
	"github.com/antoniostano/thicket/internal/observability"
	"github.com/antoniostano/thicket/internal/oracle"
	"github.com/antoniostano/thicket/internal/policy"
	"github.com/antoniostano/thicket/internal/world"
)

// Prompter renders actor and arbiter prompts. Its output is opaque here.
type Prompter interface {
	Intent(actor world.Actor, state world.State, tl memory.Timeline, transcript []contracts.Entry) string
	Arbiter(inputJSON string) string
}

// Consolidator updates actor memories after a turn, one actor at a time.
type Consolidator interface {
	Consolidate(ctx context.Context, inputs []memory.Input) []memory.Outcome
}

// Recorder persists completed turns, e.g. the sqlite journal.
type Recorder interface {
	Record(ctx context.Context, res Result) error
}

type Config struct {
	Store        *world.Store
	Ledger       *contracts.Ledger
	Oracle       oracle.Oracle
	Prompts      Prompter
	Memories     memory.Store
	Consolidator Consolidator

	Recorder Recorder
	Metrics  *observability.Metrics
	Observer Observer
	Logger   *slog.Logger

	// WorkDir is where a local oracle process runs.
	WorkDir string
	// Parallelism caps concurrent intent calls; 0 means one goroutine per actor.
	Parallelism int
	// Serialize forbids two turns from running at the same time.
	Serialize bool

	Now   func() time.Time
	NewID func() string
}

// Orchestrator runs turns against the shared world store.
type Orchestrator struct {
	cfg Config

	// slot holds one token while a serialized turn runs.
	slot   chan struct{}
	number atomic.Int64

	mu    sync.RWMutex
	phase Phase
}

func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("turn: world store is required")
	case cfg.Ledger == nil:
		return nil, errors.New("turn: contract ledger is required")
	case cfg.Oracle == nil:
		return nil, errors.New("turn: oracle is required")
	case cfg.Prompts == nil:
		return nil, errors.New("turn: prompt builder is required")
	case cfg.Memories == nil:
		return nil, errors.New("turn: memory store is required")
	case cfg.Consolidator == nil:
		return nil, errors.New("turn: memory consolidator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Parallelism < 0 {
		cfg.Parallelism = 0
	}
	return &Orchestrator{
		cfg:   cfg,
		slot:  make(chan struct{}, 1),
		phase: PhaseIdle,
	}, nil
}

// Phase reports the phase most recently entered by any running turn.
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

// TurnsStarted reports how many turns have begun since start.
func (o *Orchestrator) TurnsStarted() int64 {
	return o.number.Load()
}

func (o *Orchestrator) enter(turnID string, p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.cfg.Observer.PhaseChanged(turnID, p)
}

func (o *Orchestrator) timePhase(p Phase, start time.Time) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObservePhase(string(p), o.cfg.Now().Sub(start))
	}
}

func (o *Orchestrator) indicator(name, reason string) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveIndicator(name, reason)
	}
}

// ExecuteTurn runs one full collect, resolve, apply, consolidate cycle. A returned error is
// always a *Error.
func (o *Orchestrator) ExecuteTurn(ctx context.Context) (Result, error) {
	if o.cfg.Serialize {
		select {
		case o.slot <- struct{}{}:
			defer func() { <-o.slot }()
		case <-ctx.Done():
			return Result{}, &Error{Kind: KindCanceled, Err: fmt.Errorf("waiting for running turn: %w", ctx.Err())}
		}
	}

	res := Result{
		TurnID:    o.cfg.NewID(),
		Number:    o.number.Add(1),
		StartedAt: o.cfg.Now().UTC(),
	}
	log := o.cfg.Logger.With("turn_id", res.TurnID)
	log.Info("turn started", "number", res.Number)
	o.cfg.Observer.TurnStarted(res.TurnID, res.Number)

	fail := func(terr *Error) (Result, error) {
		terr.TurnID = res.TurnID
		log.Error("turn failed", "kind", terr.Kind, "contract_id", terr.ContractID, "err", terr.Err)
		if terr.Raw != "" {
			log.Debug("offending reply", "raw", policy.ForLog(terr.Raw, 2000))
		}
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.ObserveTurn(string(terr.Kind), o.cfg.Now().Sub(res.StartedAt))
		}
		o.indicator("turn_failed", failReason(terr))
		o.cfg.Observer.TurnFailed(res.TurnID, terr)
		o.enter(res.TurnID, PhaseIdle)
		return res, terr
	}

	snap := o.cfg.Store.Snapshot()
	res.Intents = o.collect(ctx, res.TurnID, snap)

	resolution, terr := o.resolve(ctx, res.TurnID, snap, res.Intents)
	if terr != nil {
		return fail(terr)
	}
	res.Resolution = resolution
	o.cfg.Observer.Resolved(res.TurnID, resolution)

	res.Contracts, res.Skipped, terr = o.apply(ctx, res.TurnID, resolution)
	if terr != nil {
		return fail(terr)
	}

	res.Memory = o.consolidate(ctx, res.TurnID, snap, res.Intents, resolution.Narrative)

	res.EndedAt = o.cfg.Now().UTC()
	o.enter(res.TurnID, PhaseIdle)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveTurn("ok", res.EndedAt.Sub(res.StartedAt))
	}
	if o.cfg.Recorder != nil {
		if err := o.cfg.Recorder.Record(ctx, res); err != nil {
			log.Warn("journal append failed", "err", err)
		}
	}
	log.Info("turn completed", "intents", len(res.Intents), "duration_ms", res.EndedAt.Sub(res.StartedAt).Milliseconds())
	o.cfg.Observer.TurnCompleted(res)
	return res, nil
}

// CollectIntents runs only the collection phase against a fresh snapshot. Nothing is applied.
func (o *Orchestrator) CollectIntents(ctx context.Context) []Intent {
	id := o.cfg.NewID()
	intents := o.collect(ctx, id, o.cfg.Store.Snapshot())
	o.enter(id, PhaseIdle)
	return intents
}

// collect queries every actor of snap concurrently. Failed actors are left out; the result keeps
// snapshot order whatever order the replies arrive in.
func (o *Orchestrator) collect(ctx context.Context, turnID string, snap world.State) []Intent {
	o.enter(turnID, PhaseCollecting)
	defer o.timePhase(PhaseCollecting, o.cfg.Now())

	actors := snap.OrderedActors()
	slots := make([]*Intent, len(actors))

	var g errgroup.Group
	if o.cfg.Parallelism > 0 {
		g.SetLimit(o.cfg.Parallelism)
	}
	for i, actor := range actors {
		i, actor := i, actor
		g.Go(func() error {
			intent, err := o.collectOne(ctx, actor, snap)
			if err != nil {
				o.cfg.Logger.Warn("intent dropped", "turn_id", turnID, "actor", actor.Name, "err", err)
				o.indicator("intent_dropped", dropReason(err))
				o.cfg.Observer.IntentDropped(turnID, actor.Name, err)
				return nil
			}
			slots[i] = &intent
			o.cfg.Observer.IntentCollected(turnID, intent)
			return nil
		})
	}
	_ = g.Wait()

	intents := make([]Intent, 0, len(slots))
	for _, in := range slots {
		if in != nil {
			intents = append(intents, *in)
		}
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.IntentsCollected.Observe(float64(len(intents)))
	}
	return intents
}

func (o *Orchestrator) collectOne(ctx context.Context, actor world.Actor, snap world.State) (Intent, error) {
	tl, err := o.cfg.Memories.Read(ctx, actor.Name)
	if err != nil {
		return Intent{}, err
	}
	var transcript []contracts.Entry
	if actor.ActiveContract != "" {
		// A missing or unreadable transcript only costs the actor some context.
		if entries, err := o.cfg.Ledger.Transcript(ctx, actor.ActiveContract); err == nil {
			transcript = entries
		}
	}

	prompt := o.cfg.Prompts.Intent(actor, snap, tl, transcript)
	wc := oracle.WorkingContext{Dir: o.cfg.WorkDir, Role: oracle.RoleActor, Actor: actor.Name}
	raw, err := o.cfg.Oracle.Query(ctx, prompt, wc)
	if err != nil {
		return Intent{}, err
	}
	o.cfg.Logger.Debug("intent reply", "actor", actor.Name, "raw", policy.ForLog(raw, 2000))

	intent, err := extract.ExtractWith[Intent](raw, intentShape)
	if err != nil {
		return Intent{}, err
	}
	if intent.Actor != actor.Name {
		o.cfg.Logger.Info("intent names another actor; using the queried one", "actor", actor.Name, "claimed", intent.Actor)
		intent.Actor = actor.Name
	}
	return intent, nil
}

func (o *Orchestrator) resolve(ctx context.Context, turnID string, snap world.State, intents []Intent) (Resolution, *Error) {
	o.enter(turnID, PhaseResolving)
	defer o.timePhase(PhaseResolving, o.cfg.Now())

	kind := KindArbiter
	if len(intents) == 0 {
		kind = KindNoIntents
	}

	input := ArbiterInput{
		CurrentState: CurrentState{
			Actors:          snap.Actors,
			ActiveContracts: snap.ActiveContracts(),
		},
		Locations: o.cfg.Store.Locations(),
		Intents:   intents,
	}
	if input.Intents == nil {
		input.Intents = []Intent{}
	}
	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return Resolution{}, &Error{Kind: kind, Err: fmt.Errorf("encode arbiter input: %w", err)}
	}

	wc := oracle.WorkingContext{Dir: o.cfg.WorkDir, Role: oracle.RoleArbiter}
	raw, err := o.cfg.Oracle.Query(ctx, o.cfg.Prompts.Arbiter(string(payload)), wc)
	if err != nil {
		return Resolution{}, &Error{Kind: kind, Err: err}
	}
	o.cfg.Logger.Debug("arbiter reply", "turn_id", turnID, "raw", policy.ForLog(raw, 4000))

	res, err := extract.ExtractWith[Resolution](raw, resolutionShape)
	if err != nil {
		rawText, _ := extract.RawOf(err)
		return Resolution{}, &Error{Kind: kind, Raw: rawText, Err: err}
	}
	if res.NextDirectives == nil {
		res.NextDirectives = map[string]string{}
	}
	o.cfg.Logger.Info("turn resolved", "turn_id", turnID, "narrative", res.Narrative,
		"state_changes", len(res.StateChanges), "contract_ops", len(res.Contracts))
	return res, nil
}

// apply performs every contract's transcript I/O first, then makes state changes, contract
// attachments and directives visible in one world-store batch, in that order. Bad references are
// skipped and reported; only a transcript storage failure fails the turn.
func (o *Orchestrator) apply(ctx context.Context, turnID string, res Resolution) ([]ContractOutcome, []string, *Error) {
	o.enter(turnID, PhaseApplying)
	defer o.timePhase(PhaseApplying, o.cfg.Now())
	log := o.cfg.Logger.With("turn_id", turnID)

	outcomes := make([]ContractOutcome, len(res.Contracts))
	effects := make([]contracts.Effect, len(res.Contracts))
	for i, op := range res.Contracts {
		p, err := o.cfg.Ledger.Prepare(ctx, op)
		id := p.Contract.ID
		if id == "" && p.Action != contracts.ActionCreate {
			id = op.ID
		}
		outcomes[i] = ContractOutcome{Action: op.Action, ContractID: id}
		if err != nil {
			if errors.Is(err, contracts.ErrTranscriptIO) {
				o.countContract(op.Action, "storage_error")
				return outcomes, nil, &Error{Kind: KindStorage, ContractID: id, Err: err}
			}
			outcomes[i].Error = err.Error()
			o.countContract(op.Action, "ignored")
			log.Warn("contract op skipped", "action", op.Action, "contract_id", op.ID, "err", err)
			continue
		}
		effects[i] = p.Effect
	}

	locations := o.cfg.Store.Locations()
	var skipped, reasons []string
	skip := func(reason, detail string) {
		skipped = append(skipped, detail)
		reasons = append(reasons, reason)
	}
	err := o.cfg.Store.Apply(func(tx *world.Tx) error {
		for _, ch := range res.StateChanges {
			loc, ok := matchLocation(locations, ch.Location)
			if !ok {
				skip("state_change", fmt.Sprintf("state change for %s: unknown location %q", ch.Actor, ch.Location))
				continue
			}
			if err := tx.SetLocationAndActivity(ch.Actor, loc, ch.Activity); err != nil {
				skip("state_change", fmt.Sprintf("state change for %s: %v", ch.Actor, err))
			}
		}
		for i, effect := range effects {
			if effect == nil {
				continue
			}
			if err := effect(tx); err != nil {
				outcomes[i].Error = err.Error()
				skip("contract", fmt.Sprintf("contract %s: %v", outcomes[i].ContractID, err))
			}
		}
		names := make([]string, 0, len(res.NextDirectives))
		for name := range res.NextDirectives {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			text := res.NextDirectives[name]
			if d := policy.ScreenDirective(text); d.Blocked {
				skip("directive_blocked", fmt.Sprintf("directive for %s: %s", name, d.Reason))
				continue
			}
			if err := tx.SetPendingDirective(name, text); err != nil {
				skip("directive", fmt.Sprintf("directive for %s: %v", name, err))
			}
		}
		return nil
	})
	if err != nil {
		return outcomes, skipped, &Error{Kind: KindStorage, Err: err}
	}

	for i, oc := range outcomes {
		if effects[i] != nil && oc.Error == "" {
			o.countContract(oc.Action, "ok")
		}
	}
	for i, s := range skipped {
		log.Warn("resolution entry skipped", "detail", s)
		o.indicator("resolution_entry_skipped", reasons[i])
	}
	return outcomes, skipped, nil
}

func (o *Orchestrator) countContract(action, outcome string) {
	if o.cfg.Metrics == nil {
		return
	}
	a, ok := contracts.ParseAction(action)
	label := string(a)
	if !ok {
		label = "unknown"
	}
	o.cfg.Metrics.ContractOps.WithLabelValues(label, outcome).Inc()
}

// consolidate hands each intent's actor its view of the turn. Co-located actors come from the
// collection-time snapshot.
func (o *Orchestrator) consolidate(ctx context.Context, turnID string, snap world.State, intents []Intent, narrative string) []memory.Outcome {
	o.enter(turnID, PhaseConsolidating)
	defer o.timePhase(PhaseConsolidating, o.cfg.Now())

	inputs := make([]memory.Input, 0, len(intents))
	for _, in := range intents {
		inputs = append(inputs, memory.Input{
			Actor:     in.Actor,
			Intent:    in,
			Narrative: narrative,
			Present:   snap.CoLocated(in.Actor),
		})
	}
	outcomes := o.cfg.Consolidator.Consolidate(ctx, inputs)
	if o.cfg.Metrics != nil {
		for _, oc := range outcomes {
			outcome := "ok"
			if oc.Err != nil {
				outcome = "error"
			}
			o.cfg.Metrics.MemoryUpdates.WithLabelValues(outcome).Inc()
		}
	}
	return outcomes
}

// matchLocation maps an arbiter-written location onto the roster's set, ignoring case, spaces,
// dashes and underscores so "ForestClearing" and "forest clearing" both land on forest_clearing.
func matchLocation(known []world.Location, raw string) (world.Location, bool) {
	want := normalizeLocation(raw)
	for _, loc := range known {
		if normalizeLocation(string(loc)) == want {
			return loc, true
		}
	}
	return "", false
}

func normalizeLocation(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}
