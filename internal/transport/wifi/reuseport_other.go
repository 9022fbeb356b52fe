//go:build !unix

package wifi

import "net"

// reusePortListenConfig has no SO_REUSEPORT equivalent wired on non-POSIX
// platforms; the bare default still lets StartListening bind normally.
var reusePortListenConfig = net.ListenConfig{}
