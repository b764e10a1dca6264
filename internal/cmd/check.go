package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mergar/devd-watcher/internal/config"
	"github.com/mergar/devd-watcher/internal/devlock"
	"github.com/mergar/devd-watcher/internal/filter"
)

var checkCmd = &cobra.Command{
	Use:   "check [device...]",
	Short: "Show the effective configuration and filter verdicts",
	Long: `Print the configuration devd-watcher would run with, then evaluate each
device name against DEMI_ALLOWED_DEVICES. Without arguments a built-in set
of common device names is checked.

Devices whose lock is currently held by a running helper are marked busy.`,
	RunE: runCheck,
}

var checkOutput string // --output

// sampleDevices is checked when no device names are given.
var sampleDevices = []string{
	"cd0", "cd1", "vtbd0", "vtbd1", "ada0", "ada1",
	"md0", "md1", "md2", "md3", "md4", "md5",
	"sda0", "sdb0", "hda0", "hdb0",
}

func init() {
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "text", "output format: text or yaml")
	rootCmd.AddCommand(checkCmd)
}

type deviceVerdict struct {
	Device    string `yaml:"device"`
	Allowed   bool   `yaml:"allowed"`
	Rule      string `yaml:"rule,omitempty"`
	Busy      bool   `yaml:"busy,omitempty"`
	LockError string `yaml:"lock_error,omitempty"`
}

type checkReport struct {
	Config   []config.Setting `yaml:"config"`
	Warnings []string         `yaml:"warnings,omitempty"`
	Filter   string           `yaml:"filter"`
	Devices  []deviceVerdict  `yaml:"devices"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkOutput != "text" && checkOutput != "yaml" {
		return fmt.Errorf("invalid --output %q (valid: text, yaml)", checkOutput)
	}

	cfg, warnings, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	devices := args
	if len(devices) == 0 {
		devices = sampleDevices
	}
	report := buildReport(cfg, warnings, devices)

	if checkOutput == "yaml" {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	}
	printReportText(cmd.OutOrStdout(), report)
	return nil
}

func buildReport(cfg *config.Config, warnings []error, devices []string) checkReport {
	rules := filter.Compile(cfg.AllowedDevices)
	locks := devlock.NewManager(cfg.LockDir, cfg.LockTimeout())

	report := checkReport{
		Config: cfg.Settings(),
		Filter: rules.String(),
	}
	for _, w := range warnings {
		report.Warnings = append(report.Warnings, w.Error())
	}

	for _, name := range devices {
		v := deviceVerdict{Device: name, Allowed: rules.Allowed(name)}
		if rule, ok := rules.Match(name); ok && v.Allowed {
			v.Rule = rule.Token
		}
		if name != "" {
			busy, err := locks.Held(name)
			if err != nil {
				v.LockError = err.Error()
			}
			v.Busy = busy
		}
		report.Devices = append(report.Devices, v)
	}
	return report
}

func printReportText(w io.Writer, report checkReport) {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true)
	allowed := r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	blocked := r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	muted := r.NewStyle().Foreground(lipgloss.Color("8"))
	warn := r.NewStyle().Foreground(lipgloss.Color("11"))

	fmt.Fprintln(w, header.Render("CONFIGURATION"))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	for _, s := range report.Config {
		value := s.Value
		if value == "" {
			value = muted.Render("(empty)")
		}
		fmt.Fprintf(w, "%-27s %s\n", s.Key, value)
	}
	for _, msg := range report.Warnings {
		fmt.Fprintln(w, warn.Render("warning: "+msg))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, header.Render("DEVICE FILTER"))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	if report.Filter == "" {
		fmt.Fprintln(w, muted.Render("(all devices allowed)"))
	}

	width := 0
	for _, d := range report.Devices {
		width = max(width, len(d.Device))
	}
	for _, d := range report.Devices {
		verdict := blocked.Render("BLOCKED")
		if d.Allowed {
			verdict = allowed.Render("ALLOWED")
		}
		line := fmt.Sprintf("%-*s  %s", width, d.Device, verdict)
		if d.Rule != "" {
			line += muted.Render("  rule " + d.Rule)
		}
		if d.Busy {
			line += warn.Render("  busy")
		}
		if d.LockError != "" {
			line += warn.Render("  lock: " + d.LockError)
		}
		fmt.Fprintln(w, line)
	}
}
