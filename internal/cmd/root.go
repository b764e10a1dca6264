package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mergar/devd-watcher/internal/config"
	"github.com/mergar/devd-watcher/internal/filter"
	"github.com/mergar/devd-watcher/internal/source"
)

var rootCmd = &cobra.Command{
	Use:   "devd-watcher",
	Short: "Run device helpers on hot-plug events",
	Long: `devd-watcher listens for device attach, detach and change notifications
and runs helpers/<platform>/<action> /dev/<device> for every device that
passes the DEMI_ALLOWED_DEVICES filter. Helpers for the same device never
overlap; a per-device lock file in DEMI_LOCK_DIR serializes them.

With -t the filter verdict for one device name is printed and nothing is run.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runRoot,
}

var (
	cfgFile    string // -c
	testDevice string // -t
	eventsPath string // --events
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is "+config.DefaultPath+")")
	rootCmd.PersistentFlags().String("source", "", "event source: auto, netlink, devd, devfs, script")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Int("max-concurrent", 0, "maximum helpers running at once (0 = unbounded)")

	rootCmd.Flags().StringVarP(&testDevice, "test-device", "t", "", "print the filter verdict for a device name and exit")
	rootCmd.Flags().StringVar(&eventsPath, "events", "", "replay \"<action> <device>\" lines from a file (- for stdin)")
}

// flagKeys binds persistent flags to their config keys.
var flagKeys = map[string]string{
	"source":         "source",
	"log-level":      "log_level",
	"max-concurrent": "max_concurrent",
}

// loadConfig layers defaults, the config file, DEMI_* variables and flags.
// Problems that were recovered from come back as warnings.
func loadConfig(cmd *cobra.Command) (*config.Config, []error, error) {
	v := viper.New()
	config.SetDefaults(v)

	var warnings []error
	path := cfgFile
	if path == "" {
		path = config.DefaultPath
	}
	if err := config.ReadFile(v, path); err != nil {
		warnings = append(warnings, err)
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	cfg, loadWarnings, err := config.Load(v)
	warnings = append(warnings, loadWarnings...)
	if err != nil {
		return nil, warnings, err
	}

	// --events without an explicit source means a replay.
	if eventsPath != "" && !cmd.Flags().Changed("source") {
		cfg.Source = source.KindScript
	}
	return cfg, warnings, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, warnings, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("test-device") {
		for _, w := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", w)
		}
		return printVerdict(cmd, cfg, testDevice)
	}
	return runDaemon(cmd, cfg, warnings)
}

func printVerdict(cmd *cobra.Command, cfg *config.Config, device string) error {
	verdict := "BLOCKED"
	if filter.Compile(cfg.AllowedDevices).Allowed(device) {
		verdict = "ALLOWED"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Testing device: %s\n", device)
	fmt.Fprintf(cmd.OutOrStdout(), "Result: %s\n", verdict)
	return nil
}
