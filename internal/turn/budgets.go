package turn

import (
	"context"
	"errors"
	"time"

	"github.com/antoniostano/thicket/internal/extract"
	"github.com/antoniostano/thicket/internal/memory"
	"github.com/antoniostano/thicket/internal/observability"
	"github.com/antoniostano/thicket/internal/oracle"
)

// applyBudget bounds the applying phase, which only touches transcripts and the world store.
const applyBudget = 5 * time.Second

// OraclePhase names the latency series of oracle calls made for role.
func OraclePhase(role string) string {
	return "oracle_" + role
}

// PhaseBudgets derives the latency each phase should stay under from the oracle timeout.
// Collection waits for ceil(actors/parallelism) rounds of intent calls, resolution for one call
// and consolidation for one call per actor.
func PhaseBudgets(oracleTimeout time.Duration, actors, parallelism int) observability.PhaseBudgets {
	actors = max(actors, 1)
	rounds := 1
	if parallelism > 0 && actors > parallelism {
		rounds = (actors + parallelism - 1) / parallelism
	}
	collect := time.Duration(rounds) * oracleTimeout
	consolidate := time.Duration(actors) * oracleTimeout

	b := observability.PhaseBudgets{
		string(PhaseCollecting):    collect,
		string(PhaseResolving):     oracleTimeout,
		string(PhaseApplying):      applyBudget,
		string(PhaseConsolidating): consolidate,
		observability.TotalPhase:   collect + oracleTimeout + applyBudget + consolidate,
	}
	for _, role := range []string{oracle.RoleActor, oracle.RoleArbiter, oracle.RoleMemory} {
		b[OraclePhase(role)] = oracleTimeout
	}
	return b
}

// dropReason names why an actor's intent was lost: the oracle failure kind when there is one.
func dropReason(err error) string {
	if kind := oracle.KindOf(err); kind != "" {
		return string(kind)
	}
	switch {
	case errors.Is(err, extract.ErrMalformedJSON):
		return "malformed_json"
	case errors.Is(err, extract.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, memory.ErrMemoryIO):
		return "memory_io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "other"
}

// failReason refines a failed turn's kind with the oracle failure behind it, e.g. arbiter/timeout.
func failReason(err *Error) string {
	if kind := oracle.KindOf(err.Err); kind != "" {
		return string(err.Kind) + "/" + string(kind)
	}
	return string(err.Kind)
}
