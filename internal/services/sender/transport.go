package sender

import (
	"fmt"
	"log"
	"net"
	"time"
)

// Transport delivers a batch of datagrams to a device. Batches are sent
// in order with the given inter-command spacing; the first failure aborts
// the rest.
type Transport interface {
	Send(ip string, port int, datagrams [][]byte, spacing time.Duration) error
}

// UDPTransport sends over an ephemeral UDP socket. Control commands are
// fire-and-forget; no response is awaited.
type UDPTransport struct{}

func (UDPTransport) Send(ip string, port int, datagrams [][]byte, spacing time.Duration) error {
	conn, err := net.Dial("udp4", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return fmt.Errorf("failed to dial %s:%d: %w", ip, port, err)
	}
	defer conn.Close()

	for i, datagram := range datagrams {
		if i > 0 && spacing > 0 {
			time.Sleep(spacing)
		}
		if _, err := conn.Write(datagram); err != nil {
			return fmt.Errorf("send to %s:%d failed: %w", ip, port, err)
		}
	}
	return nil
}

// NopTransport is the dry-run transport: everything drains, nothing is
// sent.
type NopTransport struct{}

func (NopTransport) Send(ip string, port int, datagrams [][]byte, _ time.Duration) error {
	log.Printf("🔄 [dry-run] would send %d datagram(s) to %s:%d", len(datagrams), ip, port)
	return nil
}
