package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker succeeds when a TCP connection can be opened, e.g. to a
// database port on an instance's admin address
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a TCP checker for host:port
func NewTCPChecker(host string, port int) *TCPChecker {
	return &TCPChecker{
		Address: net.JoinHostPort(host, fmt.Sprint(port)),
		Timeout: 5 * time.Second,
	}
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return result(start, false, fmt.Sprintf("connect %s: %v", t.Address, err))
	}
	conn.Close()
	return result(start, true, fmt.Sprintf("%s accepts connections", t.Address))
}

func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}
