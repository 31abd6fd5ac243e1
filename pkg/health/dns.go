package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DNSChecker is healthy when a resolver answers an A query for Name with
// at least one address
type DNSChecker struct {
	Resolver string
	Name     string
	Client   *dns.Client
}

// NewDNSChecker creates a checker querying resolver ("host:port") for name
func NewDNSChecker(resolver, name string) *DNSChecker {
	return &DNSChecker{
		Resolver: resolver,
		Name:     dns.Fqdn(name),
		Client:   &dns.Client{Net: "udp", Timeout: 5 * time.Second},
	}
}

func (d *DNSChecker) Check(ctx context.Context) Result {
	start := time.Now()

	msg := &dns.Msg{}
	msg.SetQuestion(d.Name, dns.TypeA)
	resp, _, err := d.Client.ExchangeContext(ctx, msg, d.Resolver)
	if err != nil {
		return result(start, false, fmt.Sprintf("query %s at %s: %v", d.Name, d.Resolver, err))
	}
	if resp.Rcode != dns.RcodeSuccess {
		return result(start, false, fmt.Sprintf("%s: %s", d.Name, dns.RcodeToString[resp.Rcode]))
	}

	var addrs []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	if len(addrs) == 0 {
		return result(start, false, fmt.Sprintf("%s has no A records", d.Name))
	}
	return result(start, true, strings.Join(addrs, ","))
}

func (d *DNSChecker) Type() CheckType {
	return CheckTypeDNS
}
