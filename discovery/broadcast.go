//go:build !windows

package discovery

import (
	"fmt"
	"net"
	"syscall"
)

// enableBroadcast sets SO_BROADCAST on the underlying UDP socket so a
// send to 255.255.255.255 is not rejected by the kernel.
func enableBroadcast(conn net.PacketConn) error {
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		return fmt.Errorf("discovery: not a UDP connection")
	}

	rawConn, err := udpConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("discovery: get raw connection: %w", err)
	}

	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
