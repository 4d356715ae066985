package registry

import (
	"fmt"
	"net"
)

// portFree reports whether host:port can be bound right now. It is a
// best-effort probe — the daemon itself does the authoritative bind a
// moment later — but narrows the scan to ports not already in use by
// something else on the machine.
func portFree(host string, port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
