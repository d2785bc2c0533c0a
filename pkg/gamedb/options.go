package gamedb

import (
	"strings"

	"github.com/kruton/etamoo/pkg/value"
)

// SystemObject is the object the system verbs and options live on.
const SystemObject value.Obj = 0

// Options is the snapshot of server options derived from the properties of
// $server_options. A reload recomputes the whole snapshot, including the
// protection map.
type Options struct {
	BgSeconds     int
	BgTicks       int
	FgSeconds     int
	FgTicks       int
	MaxStackDepth int

	QueuedTaskLimit        int // -1 when unset
	ConnectTimeout         int // seconds
	OutboundConnectTimeout int
	NameLookupTimeout      int

	DefaultFlushCommand           string
	SupportNumericVerbnameStrings bool

	// Protected maps a built-in property or function name (without the
	// protect_ prefix) to true when only wizards may touch it.
	Protected map[string]bool
}

// DefaultOptions returns the built-in defaults used before any in-world
// $server_options object exists.
func DefaultOptions() *Options {
	return &Options{
		BgSeconds:           3,
		BgTicks:             15000,
		FgSeconds:           5,
		FgTicks:             30000,
		MaxStackDepth:       50,
		QueuedTaskLimit:     -1,
		ConnectTimeout:      300,
		OutboundConnectTimeout: 5,
		NameLookupTimeout:   5,
		DefaultFlushCommand: ".flush",
		Protected:           make(map[string]bool),
	}
}

// LoadOptions recomputes the option snapshot from #0.server_options and
// installs it on the world. Unreadable or ill-typed properties keep their
// defaults.
func (w *World) LoadOptions() {
	opts := DefaultOptions()
	defer func() { w.Options = opts }()

	sov, code := w.ReadProperty(SystemObject, "server_options")
	if code != value.ErrNone {
		return
	}
	soObj, ok := sov.(value.Obj)
	if !ok || !w.Valid(soObj) {
		return
	}

	intOpt := func(name string, into *int) {
		if v, code := w.ReadProperty(soObj, name); code == value.ErrNone {
			if n, ok := v.(value.Int); ok && n > 0 {
				*into = int(n)
			}
		}
	}
	intOpt("bg_seconds", &opts.BgSeconds)
	intOpt("bg_ticks", &opts.BgTicks)
	intOpt("fg_seconds", &opts.FgSeconds)
	intOpt("fg_ticks", &opts.FgTicks)
	intOpt("max_stack_depth", &opts.MaxStackDepth)
	intOpt("connect_timeout", &opts.ConnectTimeout)
	intOpt("outbound_connect_timeout", &opts.OutboundConnectTimeout)
	intOpt("name_lookup_timeout", &opts.NameLookupTimeout)

	if v, code := w.ReadProperty(soObj, "queued_task_limit"); code == value.ErrNone {
		if n, ok := v.(value.Int); ok && n >= 0 {
			opts.QueuedTaskLimit = int(n)
		}
	}
	if v, code := w.ReadProperty(soObj, "default_flush_command"); code == value.ErrNone {
		if s, ok := v.(value.Str); ok {
			opts.DefaultFlushCommand = string(s)
		}
	}
	if v, code := w.ReadProperty(soObj, "support_numeric_verbname_strings"); code == value.ErrNone {
		opts.SupportNumericVerbnameStrings = v.Truthy()
	}

	// Scan every property of the options object for protect_* markers.
	so := w.Get(soObj)
	for id := soObj; id != value.Nothing; id = so.Parent {
		so = w.Get(id)
		if so == nil {
			break
		}
		for _, name := range so.PropDefs {
			folded := value.Fold(name)
			if !strings.HasPrefix(folded, "protect_") {
				continue
			}
			if v, code := w.ReadProperty(soObj, folded); code == value.ErrNone && v.Truthy() {
				opts.Protected[strings.TrimPrefix(folded, "protect_")] = true
			}
		}
	}
}

// QueuedTaskLimitFor resolves the queued-task quota for a programmer: the
// programmer's own queued_task_limit property when present, else the server
// option. Negative means unlimited.
func (w *World) QueuedTaskLimitFor(programmer value.Obj) int {
	if v, code := w.ReadProperty(programmer, "queued_task_limit"); code == value.ErrNone {
		if n, ok := v.(value.Int); ok && n >= 0 {
			return int(n)
		}
	}
	return w.Options.QueuedTaskLimit
}

// Messages returns a #0 message property (boot_msg and friends) as lines.
// A string property is one line; a list yields one line per string element.
func (w *World) Messages(name string) []string {
	v, code := w.ReadProperty(SystemObject, name)
	if code != value.ErrNone {
		return nil
	}
	switch m := v.(type) {
	case value.Str:
		return []string{string(m)}
	case value.List:
		var out []string
		for _, e := range m {
			if s, ok := e.(value.Str); ok {
				out = append(out, string(s))
			}
		}
		return out
	}
	return nil
}
