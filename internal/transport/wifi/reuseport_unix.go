//go:build unix

package wifi

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortListenConfig sets SO_REUSEADDR/SO_REUSEPORT on the SSDP listen
// socket so a restarted listener can rebind immediately without waiting out
// TIME_WAIT, mirroring the teacher's platform-specific socket tuning (e.g.
// usrwg/router/router_linux.go) adapted to SSDP's multicast socket.
var reusePortListenConfig = net.ListenConfig{
	Control: func(_, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				ctrlErr = err
				return
			}
			ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	},
}
