package gamedb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kruton/etamoo/pkg/value"
)

// newTestWorld builds a small world:
//
//	#0 System
//	#1 Root (fertile) - defines "desc"
//	#2 Wizard (player, wizard, programmer), parent #1
//	#3 Thing, parent #1, location #2
func newTestWorld(t *testing.T) *World {
	t.Helper()
	w := NewWorld()

	sys, code := w.CreateObject(value.Nothing, value.Nothing)
	if code != value.ErrNone || sys != 0 {
		t.Fatalf("create system object: #%d code %v", sys, code)
	}
	w.Get(sys).Name = "System Object"

	root, _ := w.CreateObject(value.Nothing, value.Nothing)
	w.Get(root).Name = "Root Class"
	w.Get(root).SetFlag(FlagFertile, true)

	wiz, _ := w.CreateObject(root, value.Nothing)
	wizObj := w.Get(wiz)
	wizObj.Name = "Wizard"
	wizObj.SetFlag(FlagWizard, true)
	wizObj.SetFlag(FlagProgrammer, true)
	w.SetPlayer(wiz, true)

	thing, _ := w.CreateObject(root, wiz)
	w.Get(thing).Name = "Thing"
	if code := w.Move(thing, wiz); code != value.ErrNone {
		t.Fatalf("move thing: %v", code)
	}

	if code := w.AddProperty(root, "desc", value.Str("a featureless blob"), wiz, PropRead); code != value.ErrNone {
		t.Fatalf("add property: %v", code)
	}
	return w
}

func TestPropertyInheritance(t *testing.T) {
	w := newTestWorld(t)

	// #3 inherits the value from #1 through its clear slot.
	v, code := w.ReadProperty(3, "desc")
	if code != value.ErrNone || v != value.Str("a featureless blob") {
		t.Fatalf("inherited read = %v (%v)", v, code)
	}

	// An override on #3 shadows the ancestor value without touching it.
	if code := w.WriteProperty(2, true, 3, "desc", value.Str("shiny")); code != value.ErrNone {
		t.Fatalf("write: %v", code)
	}
	if v, _ := w.ReadProperty(3, "desc"); v != value.Str("shiny") {
		t.Errorf("override read = %v", v)
	}
	if v, _ := w.ReadProperty(1, "desc"); v != value.Str("a featureless blob") {
		t.Errorf("ancestor value disturbed: %v", v)
	}

	// Clearing restores delegation.
	if code := w.ClearProperty(3, "desc"); code != value.ErrNone {
		t.Fatalf("clear: %v", code)
	}
	if v, _ := w.ReadProperty(3, "desc"); v != value.Str("a featureless blob") {
		t.Errorf("read after clear = %v", v)
	}

	// Clearing the defining slot is refused.
	if code := w.ClearProperty(1, "desc"); code != value.ErrInvArg {
		t.Errorf("clearing defining slot: %v", code)
	}
}

func TestPropertyNameCollision(t *testing.T) {
	w := newTestWorld(t)
	// "desc" is defined on #1, so neither ancestor nor descendant may
	// redefine it, case-insensitively.
	if code := w.AddProperty(3, "DESC", value.Int(0), 2, 0); code != value.ErrInvArg {
		t.Errorf("descendant redefinition: %v", code)
	}
}

func TestBuiltinProperties(t *testing.T) {
	w := newTestWorld(t)
	if v, _ := w.ReadProperty(2, "name"); v != value.Str("Wizard") {
		t.Errorf("name = %v", v)
	}
	if v, _ := w.ReadProperty(2, "wizard"); v != value.Int(1) {
		t.Errorf("wizard = %v", v)
	}
	if v, _ := w.ReadProperty(2, "contents"); !value.Equal(v, value.List{value.Obj(3)}) {
		t.Errorf("contents = %v", value.ToLiteral(v))
	}

	// Player rename requires a wizard.
	if code := w.WriteProperty(3, false, 2, "name", value.Str("Zed")); code != value.ErrPerm {
		t.Errorf("non-wizard player rename: %v", code)
	}
	if code := w.WriteProperty(2, true, 2, "name", value.Str("Zed")); code != value.ErrNone {
		t.Errorf("wizard rename: %v", code)
	}
	// location and contents never write through this path.
	if code := w.WriteProperty(2, true, 3, "location", value.Obj(0)); code != value.ErrPerm {
		t.Errorf("location write: %v", code)
	}
}

func TestChparentCycleDetection(t *testing.T) {
	w := newTestWorld(t)
	if code := w.Chparent(1, 1); code != value.ErrRecMove {
		t.Errorf("self-parent: %v", code)
	}
	// #3 is a child of #1; making #1 a child of #3 closes a cycle.
	if code := w.Chparent(1, 3); code != value.ErrRecMove {
		t.Errorf("descendant parent: %v", code)
	}
	if code := w.Chparent(3, value.Nothing); code != value.ErrNone {
		t.Errorf("unparent: %v", code)
	}
	if _, _, ok := w.LookupProperty(3, "desc"); ok {
		t.Errorf("slot should be gone after unparenting")
	}
	if code := w.Chparent(3, 1); code != value.ErrNone {
		t.Errorf("reparent: %v", code)
	}
	if v, code := w.ReadProperty(3, "desc"); code != value.ErrNone || v != value.Str("a featureless blob") {
		t.Errorf("inherited read after reparent = %v (%v)", v, code)
	}
}

func TestMoveCycleDetection(t *testing.T) {
	w := newTestWorld(t)
	box, _ := w.CreateObject(1, 2)
	if code := w.Move(box, box); code != value.ErrRecMove {
		t.Errorf("move into self: %v", code)
	}
	if code := w.Move(3, box); code != value.ErrNone {
		t.Fatalf("move: %v", code)
	}
	if code := w.Move(box, 3); code != value.ErrRecMove {
		t.Errorf("move into own contents: %v", code)
	}
	// Contents chains stay inverse of locations.
	if got := w.Get(2).Contents; len(got) != 0 {
		t.Errorf("old location contents = %v", got)
	}
	if diff := cmp.Diff([]value.Obj{3}, w.Get(box).Contents); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestVerbNameMatching(t *testing.T) {
	v := &Verb{Names: "g*et take sw*"}
	for _, good := range []string{"g", "ge", "get", "GET", "take", "sw", "swing"} {
		if !v.MatchName(good) {
			t.Errorf("%q should match %q", good, v.Names)
		}
	}
	for _, bad := range []string{"", "gets", "ta", "s"} {
		if v.MatchName(bad) {
			t.Errorf("%q should not match %q", bad, v.Names)
		}
	}
	any := &Verb{Names: "*"}
	if !any.MatchName("anything") {
		t.Errorf("* should match everything")
	}
}

func TestLookupVerbInheritance(t *testing.T) {
	w := newTestWorld(t)
	v := &Verb{Names: "look l*ook", Owner: 2, Perms: VerbRead | VerbExec}
	if _, code := w.AddVerb(1, v); code != value.ErrNone {
		t.Fatalf("add verb: %v", code)
	}
	holder, got, _, ok := w.LookupVerb(3, "look", false)
	if !ok || holder != 1 || got != v {
		t.Fatalf("lookup on child: holder #%d ok %v", holder, ok)
	}
	// Numeric lookup addresses the object's own list only.
	if _, _, i, ok := w.LookupVerb(1, "0", true); !ok || i != 0 {
		t.Errorf("numeric lookup: %v index %d", ok, i)
	}
	if _, _, _, ok := w.LookupVerb(3, "0", true); ok {
		t.Errorf("numeric lookup should not walk the parent chain")
	}
}

func TestRenumber(t *testing.T) {
	w := newTestWorld(t)
	doomed, _ := w.CreateObject(value.Nothing, 2)
	high, _ := w.CreateObject(1, 2)
	w.Get(high).Name = "High"
	if code := w.Recycle(doomed); code != value.ErrNone {
		t.Fatalf("recycle: %v", code)
	}

	got, code := w.Renumber(high)
	if code != value.ErrNone || got != doomed {
		t.Fatalf("renumber: #%d (%v), want #%d", got, code, doomed)
	}
	if w.Get(high) != nil {
		t.Errorf("old slot should be a hole")
	}
	o := w.Get(got)
	if o == nil || o.Name != "High" || o.ID != got {
		t.Fatalf("moved object wrong: %+v", o)
	}
	// The parent's children list must reference the new number.
	found := false
	for _, c := range w.Get(1).Children {
		if c == got {
			found = true
		}
		if c == high {
			t.Errorf("stale child reference #%d", c)
		}
	}
	if !found {
		t.Errorf("children of #1 missing #%d: %v", got, w.Get(1).Children)
	}
}

func TestRecycleDumpsContentsAndReparents(t *testing.T) {
	w := newTestWorld(t)
	box, _ := w.CreateObject(1, 2)
	w.Move(3, box)
	child, _ := w.CreateObject(box, 2)

	if code := w.Recycle(box); code != value.ErrNone {
		t.Fatalf("recycle: %v", code)
	}
	if w.Get(3).Location != value.Nothing {
		t.Errorf("contents not dumped: %v", w.Get(3).Location)
	}
	if w.Get(child).Parent != 1 {
		t.Errorf("child not reparented: %v", w.Get(child).Parent)
	}
	if w.Valid(box) {
		t.Errorf("recycled object still valid")
	}
}

func TestOptionsLoad(t *testing.T) {
	w := newTestWorld(t)
	so, _ := w.CreateObject(value.Nothing, 2)
	w.AddProperty(0, "server_options", so, 2, PropRead)
	w.AddProperty(so, "fg_ticks", value.Int(60000), 2, PropRead)
	w.AddProperty(so, "protect_wizard", value.Int(1), 2, PropRead)
	w.AddProperty(so, "default_flush_command", value.Str(".drop"), 2, PropRead)

	w.LoadOptions()
	if w.Options.FgTicks != 60000 {
		t.Errorf("fg_ticks = %d", w.Options.FgTicks)
	}
	if w.Options.BgTicks != 15000 {
		t.Errorf("bg_ticks default = %d", w.Options.BgTicks)
	}
	if !w.Options.Protected["wizard"] {
		t.Errorf("protect_wizard not honored")
	}
	if w.Options.DefaultFlushCommand != ".drop" {
		t.Errorf("flush command = %q", w.Options.DefaultFlushCommand)
	}
}

func TestMessages(t *testing.T) {
	w := newTestWorld(t)
	w.AddProperty(0, "boot_msg", value.Str("Goodbye."), 2, PropRead)
	w.AddProperty(0, "connect_msg", value.List{value.Str("one"), value.Str("two")}, 2, PropRead)
	if got := w.Messages("boot_msg"); len(got) != 1 || got[0] != "Goodbye." {
		t.Errorf("boot_msg = %v", got)
	}
	if got := w.Messages("connect_msg"); len(got) != 2 || got[1] != "two" {
		t.Errorf("connect_msg = %v", got)
	}
	if got := w.Messages("timeout_msg"); got != nil {
		t.Errorf("missing message = %v", got)
	}
}
