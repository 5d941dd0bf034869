package contracts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/thicket/internal/world"
)

// Effect is the world-store half of a contract operation. It runs inside world.Store.Apply.
type Effect func(*world.Tx) error

// Prepared is a contract operation whose transcript I/O has completed. Applying Effect makes it
// visible in the world store.
type Prepared struct {
	Action   Action
	Contract world.Contract
	Effect   Effect
}

// Ledger manages contract lifecycles on top of the world store and a transcript store.
type Ledger struct {
	store       *world.Store
	transcripts TranscriptStore
	ids         IDSource
	logger      *slog.Logger
}

func NewLedger(store *world.Store, transcripts TranscriptStore, ids IDSource, logger *slog.Logger) *Ledger {
	if ids == nil {
		ids = NewClockIDs(time.Now)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, transcripts: transcripts, ids: ids, logger: logger}
}

// Prepare performs op's transcript I/O and returns the state mutation still to apply. Nothing in
// the world store changes here, so callers can batch several effects into one Apply.
func (l *Ledger) Prepare(ctx context.Context, op Op) (Prepared, error) {
	action, ok := ParseAction(op.Action)
	if !ok {
		l.logger.Warn("contract op rejected", "action", op.Action, "contract_id", op.ID)
		return Prepared{Action: action}, fmt.Errorf("%w: %q", ErrUnknownAction, op.Action)
	}
	switch action {
	case ActionCreate:
		return l.prepareCreate(ctx, op.Participants, op.Entry)
	case ActionUpdate:
		return l.prepareUpdate(ctx, op.ID, op.Entry)
	default:
		return l.prepareEnd(op.ID)
	}
}

// Apply prepares op and applies its effect immediately.
func (l *Ledger) Apply(ctx context.Context, op Op) (Prepared, error) {
	p, err := l.Prepare(ctx, op)
	if err != nil {
		return p, err
	}
	if p.Effect != nil {
		if err := l.store.Apply(func(tx *world.Tx) error { return p.Effect(tx) }); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Create mints a fresh contract for participants, writing first as its opening transcript entry
// when supplied, and attaches every participant to it.
func (l *Ledger) Create(ctx context.Context, participants []string, first *Entry) (world.Contract, error) {
	p, err := l.Apply(ctx, Op{Action: string(ActionCreate), Participants: participants, Entry: first})
	return p.Contract, err
}

// Update appends entry to id's transcript. A nil entry is a no-op.
func (l *Ledger) Update(ctx context.Context, id string, entry *Entry) error {
	_, err := l.Apply(ctx, Op{Action: string(ActionUpdate), ID: id, Entry: entry})
	return err
}

// End detaches every participant of the contract, whatever it is attached to now. The contract
// and its transcript stay readable.
func (l *Ledger) End(ctx context.Context, id string) error {
	_, err := l.Apply(ctx, Op{Action: string(ActionEnd), ID: id})
	return err
}

func (l *Ledger) Transcript(ctx context.Context, id string) ([]Entry, error) {
	return l.transcripts.Read(ctx, id)
}

func (l *Ledger) prepareCreate(ctx context.Context, participants []string, first *Entry) (Prepared, error) {
	members := make([]string, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		p = strings.TrimSpace(p)
		if _, dup := seen[p]; dup {
			continue
		}
		if _, ok := l.store.Actor(p); !ok {
			return Prepared{Action: ActionCreate}, fmt.Errorf("create contract: %w: %q", world.ErrUnknownActor, p)
		}
		seen[p] = struct{}{}
		members = append(members, p)
	}
	if len(members) == 0 {
		return Prepared{Action: ActionCreate}, fmt.Errorf("create contract: %w: no participants", world.ErrInvariant)
	}

	id := l.ids.Next(l.store.HasContract)
	c := world.Contract{ID: id, Participants: members, TranscriptRef: l.transcripts.Ref(id)}
	if first != nil {
		if err := l.transcripts.Write(ctx, id, []Entry{*first}); err != nil {
			return Prepared{Action: ActionCreate, Contract: c}, err
		}
	}
	l.logger.Info("contract created", "contract_id", id, "participants", members)

	return Prepared{
		Action:   ActionCreate,
		Contract: c,
		Effect: func(tx *world.Tx) error {
			if err := tx.UpsertContract(c); err != nil {
				return err
			}
			for _, p := range c.Participants {
				if err := tx.SetActiveContract(p, c.ID); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

func (l *Ledger) prepareUpdate(ctx context.Context, id string, entry *Entry) (Prepared, error) {
	c, ok := l.store.Contract(id)
	if !ok {
		l.logger.Warn("contract update ignored", "contract_id", id, "err", world.ErrUnknownContract)
		return Prepared{Action: ActionUpdate}, fmt.Errorf("update contract: %w: %q", world.ErrUnknownContract, id)
	}
	if entry == nil {
		return Prepared{Action: ActionUpdate, Contract: c}, nil
	}
	entries, err := l.transcripts.Read(ctx, id)
	if err != nil {
		return Prepared{Action: ActionUpdate, Contract: c}, err
	}
	entries = append(entries, *entry)
	if err := l.transcripts.Write(ctx, id, entries); err != nil {
		return Prepared{Action: ActionUpdate, Contract: c}, err
	}
	l.logger.Debug("contract updated", "contract_id", id, "entries", len(entries))
	return Prepared{Action: ActionUpdate, Contract: c}, nil
}

func (l *Ledger) prepareEnd(id string) (Prepared, error) {
	c, ok := l.store.Contract(id)
	if !ok {
		l.logger.Warn("contract end ignored", "contract_id", id, "err", world.ErrUnknownContract)
		return Prepared{Action: ActionEnd}, fmt.Errorf("end contract: %w: %q", world.ErrUnknownContract, id)
	}
	l.logger.Info("contract ended", "contract_id", id)
	return Prepared{
		Action:   ActionEnd,
		Contract: c,
		Effect: func(tx *world.Tx) error {
			for _, p := range c.Participants {
				if err := tx.SetActiveContract(p, ""); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}
