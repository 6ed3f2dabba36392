package telemetry

import (
	"context"
	"fmt"
	"net"
)

// bindBroadcastUDP opens an IPv4 UDP socket on the given local port with
// SO_BROADCAST enabled, so discovery heartbeats may be sent to broadcast
// addresses from the same socket telemetry arrives on.
func bindBroadcastUDP(port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: enableBroadcast}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return conn, nil
}
