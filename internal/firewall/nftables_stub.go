//go:build !linux

package firewall

import (
	"errors"
	"log/slog"
)

var errUnsupported = errors.New("firewall: nftables is only available on linux")

// NftablesController is a stub on non-Linux platforms: every operation
// returns an error. Whitelist assembly still works everywhere; only
// application requires Linux.
type NftablesController struct{}

// NewNftablesController returns the stub controller.
func NewNftablesController(table, iface string, logger *slog.Logger) *NftablesController {
	return &NftablesController{}
}

func (c *NftablesController) EnsureChain(chain string) error { return errUnsupported }

func (c *NftablesController) ApplyRules(chain string, rules []Rule) error { return errUnsupported }

func (c *NftablesController) FlushChain(chain string) error { return errUnsupported }

func (c *NftablesController) DeleteChain(chain string) error { return errUnsupported }
