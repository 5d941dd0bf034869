// Package prompts renders the text sent to the oracle. The wording is data: operators override
// any template by dropping a file under the data directory, and the turn pipeline never looks
// inside the result.
package prompts

import (
	"embed"
	"os"
	"path/filepath"
	"strings"
)

//go:embed defaults/*.md
var embeddedDefaults embed.FS

// Loader resolves templates from the data directory, falling back to the built-in copies.
type Loader struct {
	dataDir string
}

func NewLoader(dataDir string) *Loader {
	return &Loader{dataDir: dataDir}
}

func (l *Loader) ActorBase() string {
	return l.load(filepath.Join("prompts", "core", "npc_base.md"), "npc_base.md")
}

func (l *Loader) ArbiterBase() string {
	return l.load(filepath.Join("prompts", "gm", "gm_base.md"), "gm_base.md")
}

func (l *Loader) MemoryTask() string {
	return l.load(filepath.Join("prompts", "core", "memory_update.md"), "memory_update.md")
}

func (l *Loader) Personality(name string) string {
	text := l.load(filepath.Join("npcs", name, "personality.md"), "personality.md")
	return strings.ReplaceAll(text, "{{name}}", name)
}

func (l *Loader) load(rel, fallback string) string {
	if l.dataDir != "" {
		// Unreadable overrides fall back silently; the default still lets the turn run.
		if data, err := os.ReadFile(filepath.Join(l.dataDir, rel)); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return defaultTemplate(fallback)
}

func defaultTemplate(name string) string {
	data, err := embeddedDefaults.ReadFile("defaults/" + name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
