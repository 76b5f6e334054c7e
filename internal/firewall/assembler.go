package firewall

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// ResolutionFailure reports a hostname that could not be resolved while
// assembling the whitelist.
type ResolutionFailure struct {
	Host string
	Err  error
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("firewall: resolve %q: %v", e.Host, e.Err)
}

func (e *ResolutionFailure) Unwrap() error { return e.Err }

// HostResolver resolves a hostname to its IPv4 addresses.
type HostResolver interface {
	Resolve(ctx context.Context, host string) ([]net.IP, error)
}

// Assembler turns the static allow-list plus optional runtime parameters
// into the ordered rule sequence for the egress chain. It is a single-pass
// transformation with no state across invocations.
type Assembler struct {
	cfg      Config
	resolver HostResolver
	logger   *slog.Logger
}

// NewAssembler creates an Assembler with the given resolver.
func NewAssembler(cfg Config, resolver HostResolver, logger *slog.Logger) *Assembler {
	return &Assembler{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With("component", "firewall"),
	}
}

// Assemble produces the ordered whitelist rules:
//
//  1. loopback accept
//  2. established/related accept
//  3. DNS accept (udp/53 and tcp/53, any destination)
//  4. one accept per static allow-list entry
//  5. optional database host accept
//  6. web accept (tcp/80, tcp/443, any destination) when AllowWeb is set
//
// The deny-all default is the chain policy, installed by the Controller
// before any of these rules take effect.
//
// A static entry that fails to resolve aborts assembly: the whitelist is
// baked in and an unresolvable entry means DNS itself is broken. The
// database host is handled per config: the default falls back to a
// port-wide accept to any destination (fail-open, logged as a warning);
// with FailClosed the rule is skipped and the port stays denied.
func (a *Assembler) Assemble(ctx context.Context) ([]Rule, error) {
	rules := []Rule{
		{Match: MatchLoopback, Action: "accept"},
		{Match: MatchEstablished, Action: "accept"},
		{Match: MatchDest, Protocol: "udp", Port: 53, Action: "accept"},
		{Match: MatchDest, Protocol: "tcp", Port: 53, Action: "accept"},
	}

	for _, entry := range a.cfg.AllowList {
		ips, err := a.resolver.Resolve(ctx, entry.Host)
		if err != nil {
			return nil, &ResolutionFailure{Host: entry.Host, Err: err}
		}
		rules = append(rules, Rule{
			Match:    MatchDest,
			Host:     entry.Host,
			IPs:      ips,
			Protocol: entry.Protocol,
			Port:     entry.Port,
			Action:   "accept",
		})
	}

	if a.cfg.DBHost != "" {
		rule, err := a.databaseRule(ctx)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			rules = append(rules, *rule)
		}
	}

	if a.cfg.AllowWeb {
		rules = append(rules,
			Rule{Match: MatchDest, Protocol: "tcp", Port: 80, Action: "accept"},
			Rule{Match: MatchDest, Protocol: "tcp", Port: 443, Action: "accept"},
		)
	}

	a.logger.Debug("assembled whitelist",
		"rules", len(rules),
		"db_host", a.cfg.DBHost,
		"allow_web", a.cfg.AllowWeb,
	)
	return rules, nil
}

// databaseRule builds the accept rule for the configured database host.
// If the host is already an IP literal no resolution is attempted.
func (a *Assembler) databaseRule(ctx context.Context) (*Rule, error) {
	if ip := net.ParseIP(a.cfg.DBHost); ip != nil {
		return &Rule{
			Match:    MatchDest,
			Host:     a.cfg.DBHost,
			IPs:      []net.IP{ip},
			Protocol: "tcp",
			Port:     a.cfg.DBPort,
			Action:   "accept",
		}, nil
	}

	ips, err := a.resolver.Resolve(ctx, a.cfg.DBHost)
	if err == nil {
		return &Rule{
			Match:    MatchDest,
			Host:     a.cfg.DBHost,
			IPs:      ips,
			Protocol: "tcp",
			Port:     a.cfg.DBPort,
			Action:   "accept",
		}, nil
	}

	if a.cfg.FailClosed {
		a.logger.Warn("database host unresolvable, port stays denied (fail-closed)",
			"host", a.cfg.DBHost,
			"port", a.cfg.DBPort,
			"error", err,
		)
		return nil, nil
	}

	// Fail-open fallback: accept the port to any destination. This widens
	// the allow surface beyond the intended single host.
	a.logger.Warn("database host unresolvable, allowing port to any destination (fail-open)",
		"host", a.cfg.DBHost,
		"port", a.cfg.DBPort,
		"error", err,
	)
	return &Rule{
		Match:    MatchDest,
		Protocol: "tcp",
		Port:     a.cfg.DBPort,
		Action:   "accept",
	}, nil
}
