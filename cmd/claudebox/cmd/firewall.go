package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/claudebox/claudebox/internal/firewall"
	"github.com/claudebox/claudebox/internal/sandbox"
)

var firewallCmd = &cobra.Command{
	Use:   "firewall",
	Short: "Manage the sandbox egress whitelist",
	Long: "Manage the outbound-traffic whitelist. Intended to run inside the sandbox\n" +
		"container during init (requires NET_ADMIN); the chain's default policy denies\n" +
		"everything not explicitly allowed.",
}

var firewallApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Assemble and install the whitelist rules",
	RunE:  runFirewallApply,
}

var firewallShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the rules that apply would install",
	RunE:  runFirewallShow,
}

var firewallFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove all whitelist rules",
	RunE:  runFirewallFlush,
}

func init() {
	firewallCmd.AddCommand(firewallApplyCmd, firewallShowCmd, firewallFlushCmd)
	rootCmd.AddCommand(firewallCmd)
}

func runFirewallApply(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadFirewallConfig()
	if err != nil {
		return err
	}
	if !cfg.Firewall.Enabled {
		logger.Info("firewall disabled, nothing to apply")
		return nil
	}

	resolver, err := firewall.NewResolver(cfg.Firewall.Resolver)
	if err != nil {
		return fmt.Errorf("claudebox firewall apply: %w", err)
	}
	asm := firewall.NewAssembler(cfg.Firewall, resolver, logger)
	rules, err := asm.Assemble(cmd.Context())
	if err != nil {
		return fmt.Errorf("claudebox firewall apply: %w", err)
	}

	ctrl := firewall.NewNftablesController(cfg.Firewall.TableName, cfg.Firewall.Interface, logger)
	if err := ctrl.EnsureChain(cfg.Firewall.ChainName); err != nil {
		return fmt.Errorf("claudebox firewall apply: %w", err)
	}
	if err := ctrl.ApplyRules(cfg.Firewall.ChainName, rules); err != nil {
		return fmt.Errorf("claudebox firewall apply: %w", err)
	}

	logger.Info("whitelist applied", "chain", cfg.Firewall.ChainName, "rules", len(rules))
	return nil
}

func runFirewallShow(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadFirewallConfig()
	if err != nil {
		return err
	}

	resolver, err := firewall.NewResolver(cfg.Firewall.Resolver)
	if err != nil {
		return fmt.Errorf("claudebox firewall show: %w", err)
	}
	asm := firewall.NewAssembler(cfg.Firewall, resolver, logger)
	rules, err := asm.Assemble(cmd.Context())
	if err != nil {
		return fmt.Errorf("claudebox firewall show: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "chain %s (policy drop)\n", cfg.Firewall.ChainName)
	for _, r := range rules {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", r.String())
	}
	return nil
}

func runFirewallFlush(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadFirewallConfig()
	if err != nil {
		return err
	}

	ctrl := firewall.NewNftablesController(cfg.Firewall.TableName, cfg.Firewall.Interface, logger)
	if err := ctrl.FlushChain(cfg.Firewall.ChainName); err != nil {
		return fmt.Errorf("claudebox firewall flush: %w", err)
	}
	logger.Info("whitelist flushed", "chain", cfg.Firewall.ChainName)
	return nil
}

func loadFirewallConfig() (*sandbox.Config, *slog.Logger, error) {
	cfg, err := sandbox.ParseConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("claudebox firewall: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}
