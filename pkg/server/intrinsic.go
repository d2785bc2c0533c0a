package server

import (
	"strings"

	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// programState accumulates `.program` lines until the terminating period.
type programState struct {
	target string // obj:verb as typed
	lines  []string
}

// handleIntrinsic runs PREFIX/SUFFIX and starts `.program` mode. Returns
// true when the line was an intrinsic command and is fully handled.
func (s *Server) handleIntrinsic(c *Connection, line string) bool {
	trimmed := strings.TrimSpace(line)
	word, rest := trimmed, ""
	if sp := strings.IndexAny(trimmed, " \t"); sp >= 0 {
		word, rest = trimmed[:sp], strings.TrimLeft(trimmed[sp+1:], " \t")
	}
	folded := value.Fold(word)

	c.mu.Lock()
	enabled := c.opts.intrinsics[folded]
	c.mu.Unlock()
	if !enabled {
		return false
	}

	switch folded {
	case "prefix", "outputprefix":
		c.mu.Lock()
		c.prefix = rest
		c.mu.Unlock()
		return true
	case "suffix", "outputsuffix":
		c.mu.Lock()
		c.suffix = rest
		c.mu.Unlock()
		return true
	case ".program":
		if rest == "" {
			c.Notify(".program: syntax is `.program object:verb'")
			return true
		}
		c.mu.Lock()
		c.prog = &programState{target: rest}
		c.mu.Unlock()
		return true
	}
	return false
}

// handleProgramMode consumes lines while a `.program` is being entered:
// everything accumulates until a line holding a single period, which
// compiles and installs the verb body.
func (s *Server) handleProgramMode(c *Connection, line string) bool {
	c.mu.Lock()
	prog := c.prog
	c.mu.Unlock()
	if prog == nil {
		return false
	}
	if strings.TrimSpace(line) != "." {
		prog.lines = append(prog.lines, line)
		return true
	}

	c.mu.Lock()
	c.prog = nil
	c.mu.Unlock()
	s.installProgram(c, prog)
	return true
}

func (s *Server) installProgram(c *Connection, prog *programState) {
	if s.Parser == nil {
		c.Notify(".program: this server has no compiler attached.")
		return
	}
	objStr, verbName, ok := strings.Cut(prog.target, ":")
	if !ok {
		c.Notify(".program: syntax is `.program object:verb'")
		return
	}
	compiled, err := s.Parser(prog.lines)
	if err != nil {
		c.Notify(".program: " + err.Error())
		return
	}

	player := c.Player()
	s.World.Attempt(func(tx *gamedb.Tx) error {
		obj := MatchObject(s.World, player, objStr)
		if !s.World.Valid(obj) {
			tx.Defer(func() { c.Notify(".program: no such object: " + objStr) })
			return nil
		}
		_, verb, _, found := s.World.LookupVerb(obj, verbName, s.World.Options.SupportNumericVerbnameStrings)
		if !found {
			tx.Defer(func() { c.Notify(".program: no such verb: " + prog.target) })
			return nil
		}
		wizard := s.World.IsWizard(player)
		if !s.World.CanWriteVerb(player, wizard, verb) {
			tx.Defer(func() { c.Notify(".program: permission denied.") })
			return nil
		}
		verb.Program = compiled
		tx.Defer(func() {
			c.Notify("0 errors.")
			c.Notify("Verb programmed.")
		})
		return nil
	})
}

// IntrinsicCommands lists the intrinsic command set for introspection.
func IntrinsicCommands() []string {
	out := make([]string, 0, len(defaultIntrinsics()))
	for name := range defaultIntrinsics() {
		out = append(out, name)
	}
	return out
}
