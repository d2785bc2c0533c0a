package server

import (
	"strings"

	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// ParsedCommand is a command line split into the pieces verb matching
// consumes.
type ParsedCommand struct {
	Verb    string
	Argstr  string
	Args    []string
	Dobjstr string
	Prepstr string
	Iobjstr string
	Prep    gamedb.PrepSpec
}

// ParseCommand splits a command line into words and locates the
// preposition. The say/emote shorthand prefixes expand first.
func ParseCommand(line string) ParsedCommand {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "\""):
		line = "say " + line[1:]
	case strings.HasPrefix(line, ":"):
		line = "emote " + line[1:]
	case strings.HasPrefix(line, ";"):
		line = "eval " + line[1:]
	}

	words := splitWords(line)
	if len(words) == 0 {
		return ParsedCommand{Prep: gamedb.PrepNone}
	}
	pc := ParsedCommand{
		Verb: words[0],
		Args: words[1:],
		Prep: gamedb.PrepNone,
	}
	if sp := strings.IndexAny(line, " \t"); sp >= 0 {
		pc.Argstr = strings.TrimLeft(line[sp+1:], " \t")
	}

	rest := words[1:]
	if spec, at, n, ok := gamedb.FindPrep(rest); ok {
		pc.Prep = spec
		pc.Prepstr = strings.Join(rest[at:at+n], " ")
		pc.Dobjstr = strings.Join(rest[:at], " ")
		pc.Iobjstr = strings.Join(rest[at+n:], " ")
	} else {
		pc.Dobjstr = strings.Join(rest, " ")
	}
	return pc
}

// splitWords splits on whitespace, honoring double quotes the way the
// command line grammar does: quoted runs keep their spaces, a backslash
// escapes the next character.
func splitWords(line string) []string {
	var words []string
	var cur strings.Builder
	inWord := false
	inQuote := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
			inWord = true
		case ch == '"':
			inQuote = !inQuote
			inWord = true
		case (ch == ' ' || ch == '\t') && !inQuote:
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteByte(ch)
			inWord = true
		}
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words
}

// MatchObject resolves an object-naming string relative to a player: "" is
// nothing, "me" and "here" are special, #n is a literal object number, and
// anything else searches the player and its location's contents by name and
// aliases. Exact matches beat prefix matches; competing prefix matches are
// ambiguous.
func MatchObject(w *gamedb.World, player value.Obj, s string) value.Obj {
	s = strings.TrimSpace(s)
	if s == "" {
		return value.Nothing
	}
	folded := value.Fold(s)
	p := w.Get(player)
	switch folded {
	case "me":
		return player
	case "here":
		if p == nil {
			return value.Failed
		}
		return p.Location
	}
	if strings.HasPrefix(s, "#") {
		var n int64
		neg := false
		rest := s[1:]
		if strings.HasPrefix(rest, "-") {
			neg = true
			rest = rest[1:]
		}
		if rest == "" {
			return value.Failed
		}
		for i := 0; i < len(rest); i++ {
			if rest[i] < '0' || rest[i] > '9' {
				return value.Failed
			}
			n = n*10 + int64(rest[i]-'0')
		}
		if neg {
			n = -n
		}
		return value.Obj(n)
	}
	if p == nil {
		return value.Failed
	}

	var exact, prefix []value.Obj
	consider := func(id value.Obj) {
		o := w.Get(id)
		if o == nil {
			return
		}
		names := []string{o.Name}
		if v, code := w.ReadProperty(id, "aliases"); code == value.ErrNone {
			if aliases, ok := v.(value.List); ok {
				for _, a := range aliases {
					if as, ok := a.(value.Str); ok {
						names = append(names, string(as))
					}
				}
			}
		}
		for _, n := range names {
			nf := value.Fold(n)
			if nf == folded {
				exact = append(exact, id)
				return
			}
			if strings.HasPrefix(nf, folded) {
				prefix = append(prefix, id)
				return
			}
		}
	}
	for _, id := range p.Contents {
		consider(id)
	}
	if loc := w.Get(p.Location); loc != nil {
		consider(p.Location)
		for _, id := range loc.Contents {
			consider(id)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0]
	case len(exact) > 1:
		return value.Ambiguous
	case len(prefix) == 1:
		return prefix[0]
	case len(prefix) > 1:
		return value.Ambiguous
	}
	return value.Failed
}

// ResolveCommandVerb runs the verb-lookup rules over player, location,
// direct object and indirect object in order, honoring each verb's
// argument specs.
func ResolveCommandVerb(w *gamedb.World, player value.Obj, pc ParsedCommand, dobj, iobj value.Obj) (this value.Obj, holder value.Obj, verb *gamedb.Verb, ok bool) {
	candidates := []value.Obj{player}
	if p := w.Get(player); p != nil && p.Location != value.Nothing {
		candidates = append(candidates, p.Location)
	}
	if dobj >= 0 && w.Valid(dobj) {
		candidates = append(candidates, dobj)
	}
	if iobj >= 0 && w.Valid(iobj) {
		candidates = append(candidates, iobj)
	}
	for _, target := range candidates {
		if h, v, found := w.FindCommandVerb(target, pc.Verb, dobj, pc.Prep, iobj); found {
			return target, h, v, true
		}
	}
	return value.Nothing, value.Nothing, nil, false
}
