package firewall

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// resolvConfPath is where the system resolver configuration lives.
const resolvConfPath = "/etc/resolv.conf"

// queryTimeout bounds a single DNS exchange.
const queryTimeout = 5 * time.Second

// dnsResolver implements HostResolver with direct A queries via miekg/dns.
// Querying the resolver directly (instead of the libc stack) keeps the
// behavior identical inside minimal container images with no nsswitch.
type dnsResolver struct {
	servers []string // "host:port"
	client  *dns.Client
}

// NewResolver returns a HostResolver that queries the given DNS server
// ("host:port"). An empty server means the servers from /etc/resolv.conf.
func NewResolver(server string) (HostResolver, error) {
	client := &dns.Client{Timeout: queryTimeout}

	if server != "" {
		return &dnsResolver{servers: []string{server}, client: client}, nil
	}

	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil {
		return nil, fmt.Errorf("firewall: resolver: read %s: %w", resolvConfPath, err)
	}
	if len(conf.Servers) == 0 {
		return nil, errors.New("firewall: resolver: no nameservers configured")
	}
	servers := make([]string, len(conf.Servers))
	for i, s := range conf.Servers {
		servers[i] = net.JoinHostPort(s, conf.Port)
	}
	return &dnsResolver{servers: servers, client: client}, nil
}

// Resolve performs an A query for host against each configured server in
// turn and returns the addresses from the first successful answer.
func (r *dnsResolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("rcode %s from %s", dns.RcodeToString[resp.Rcode], server)
			continue
		}

		var ips []net.IP
		for _, rr := range resp.Answer {
			if a, ok := rr.(*dns.A); ok {
				ips = append(ips, a.A)
			}
		}
		if len(ips) > 0 {
			return ips, nil
		}
		lastErr = fmt.Errorf("no A records from %s", server)
	}
	if lastErr == nil {
		lastErr = errors.New("no nameservers")
	}
	return nil, lastErr
}
