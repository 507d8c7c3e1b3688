package pubsubtransport

import (
	"github.com/okdaichi/pathmesh/internal/transport"
)

// Compile-time assertions that each type satisfies the transport package's
// interfaces. Exercising Listener/Replier/Sender end-to-end requires a
// live Redis server, so that coverage belongs to a deployment-time smoke
// test rather than this package's unit tests.
var (
	_ transport.Listener = (*Listener)(nil)
	_ transport.Replier  = (*Replier)(nil)
	_ transport.Sender   = (*Sender)(nil)
)
