// Package logctx wires the kernel's gated-tracing convention (one
// debug boolean per subsystem: block device, log, link/unlink, inode
// refcounting) through a structured logger instead of bare fmt.Printf.
package logctx

import "github.com/sirupsen/logrus"

/// Debug gates are the Go equivalent of the original's scattered
/// bdev_debug/log_debug booleans: flip one on to get per-subsystem
/// trace output without recompiling.
var Debug = struct {
	Bdev   bool
	Log    bool
	Link   bool
	Inode  bool
}{}

var base = logrus.New()

func init() {
	base.SetLevel(logrus.InfoLevel)
}

/// New returns a logger scoped to subsystem, tagged so trace lines
/// can be grepped or filtered by component.
func New(subsystem string) *logrus.Entry {
	return base.WithField("subsystem", subsystem)
}

/// SetLevel adjusts verbosity for every subsystem at once.
func SetLevel(l logrus.Level) {
	base.SetLevel(l)
}
