// Package builtins implements the primitive functions MOO code calls
// through the built-in registry: value, object, task, network and system
// categories.
package builtins

import (
	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/task"
	"github.com/kruton/etamoo/pkg/value"
)

// NetworkController is the server-side surface the network built-ins drive.
// The concrete implementation lives in the server package.
type NetworkController interface {
	Listen(obj value.Obj, point string, printMessages bool) value.Code
	Unlisten(point string) value.Code
	// OpenNetwork dials an outbound connection and binds it to a fresh
	// unclaimed connection object.
	OpenNetwork(host string, port int) (value.Obj, value.Code)
	// Checkpoint snapshots the world to the persistent store.
	Checkpoint() error
	VersionString() string
}

// RegisterAll installs every built-in into the registry.
func RegisterAll(reg *eval.Registry, sched *task.Scheduler, net NetworkController) {
	registerValueBuiltins(reg)
	registerListBuiltins(reg)
	registerStringBuiltins(reg)
	registerObjectBuiltins(reg)
	registerTaskBuiltins(reg, sched)
	registerNetworkBuiltins(reg, sched, net)
	registerSystemBuiltins(reg, sched, net)
}

// ownerOrWizard is the common permission gate: the effective permissions
// must be the owner of obj or a wizard.
func ownerOrWizard(c *eval.Context, obj value.Obj) error {
	o := c.World.Get(obj)
	if o == nil {
		return c.RaiseCode(value.ErrInvArg)
	}
	if c.Wizardly() || o.Owner == c.Frame().Perms {
		return nil
	}
	return c.RaiseCode(value.ErrPerm)
}

func wizardOnly(c *eval.Context) error {
	if !c.Wizardly() {
		return c.RaiseCode(value.ErrPerm)
	}
	return nil
}

func boolInt(b bool) value.Value {
	if b {
		return value.Int(1)
	}
	return value.Int(0)
}
