package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/antoniostano/thicket/internal/contracts"
	"github.com/antoniostano/thicket/internal/memory"
	"github.com/antoniostano/thicket/internal/world"
)

const sectionSep = "\n\n---\n\n"

const defaultDirective = "What do you do next?"

// Builder assembles prompts from templates plus the live state handed in by the caller.
type Builder struct {
	loader *Loader
}

func NewBuilder(loader *Loader) *Builder {
	if loader == nil {
		loader = NewLoader("")
	}
	return &Builder{loader: loader}
}

// Intent renders the prompt asking actor for this turn's intent.
func (b *Builder) Intent(actor world.Actor, state world.State, tl memory.Timeline, transcript []contracts.Entry) string {
	sections := []string{
		b.loader.ActorBase(),
		b.loader.Personality(actor.Name),
		"## Your Current Memories\n\n```json\n" + prettyJSON(tl) + "\n```",
		situation(actor, state),
	}
	if actor.ActiveContract != "" && len(transcript) > 0 {
		sections = append(sections, interaction(transcript))
	}
	directive := defaultDirective
	if actor.PendingDirective != nil && strings.TrimSpace(*actor.PendingDirective) != "" {
		directive = *actor.PendingDirective
	}
	sections = append(sections, directive)
	return strings.Join(sections, sectionSep)
}

// Arbiter wraps the serialized turn input in the narrator instructions.
func (b *Builder) Arbiter(inputJSON string) string {
	return strings.Join([]string{
		b.loader.ArbiterBase(),
		"## Current Input\n\n```json\n" + inputJSON + "\n```",
	}, sectionSep)
}

// MemoryUpdate renders the prompt asking an actor to revise its memories after a turn.
func (b *Builder) MemoryUpdate(in memory.Input, tl memory.Timeline) string {
	sections := []string{
		b.loader.MemoryTask(),
		"## Your Current Memories\n\n```json\n" + prettyJSON(tl) + "\n```",
		"## What Just Happened\n\nYou are: " + in.Actor,
		fmt.Sprintf("You intended:\n- Thought: %s\n- Action: %s", in.Intent.Thought, in.Intent.Action),
	}
	if in.Intent.Dialogue != nil {
		sections = append(sections, fmt.Sprintf("- You wanted to say: %q", *in.Intent.Dialogue))
	}
	sections = append(sections, "What actually happened:\n"+in.Narrative)
	if len(in.Present) > 0 {
		sections = append(sections, "Others present: "+strings.Join(in.Present, ", "))
	}
	sections = append(sections, "Now update your memories based on this experience.")
	return strings.Join(sections, sectionSep)
}

func situation(actor world.Actor, state world.State) string {
	var b strings.Builder
	b.WriteString("## Current Situation\n\n")
	fmt.Fprintf(&b, "- You are at: %s\n", actor.Location)
	fmt.Fprintf(&b, "- You are: %s\n", actor.Activity)

	others := state.CoLocated(actor.Name)
	if len(others) > 0 {
		b.WriteString("\nAlso here:\n")
		for _, name := range others {
			fmt.Fprintf(&b, "- %s is %s\n", name, state.Actors[name].Activity)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func interaction(transcript []contracts.Entry) string {
	var b strings.Builder
	b.WriteString("## Ongoing Interaction\n\n")
	b.WriteString("You are currently in an interaction with the following history:\n\n")
	for i, e := range transcript {
		fmt.Fprintf(&b, "### Turn %d\nWhat happened: %s\n\n", i+1, e.Narrative)
		names := make([]string, 0, len(e.Details))
		for name := range e.Details {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ex := e.Details[name]
			fmt.Fprintf(&b, "**%s**: %s", name, ex.Action)
			if ex.Dialogue != nil {
				fmt.Fprintf(&b, " - Said: %q", *ex.Dialogue)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Remember: you're continuing this interaction. Respond naturally to what just happened.")
	return b.String()
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
