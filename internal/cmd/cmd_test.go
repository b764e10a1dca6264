package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mergar/devd-watcher/internal/testutil"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so runs do not leak
// values into each other through the package-level command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), "devd-watcher.conf", content)
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "devd-watcher" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "devd-watcher")
	}

	cmdMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, expected := range []string{"check", "version"} {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}

	for _, name := range []string{"config", "test-device", "source", "events", "max-concurrent", "log-level"} {
		if rootCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
}

func TestTestDevice(t *testing.T) {
	conf := writeConfig(t, `# allow memory disks and the first cdrom
DEMI_ALLOWED_DEVICES="md* cd0"
`)

	tests := []struct {
		device string
		want   string
	}{
		{"md3", "Result: ALLOWED"},
		{"cd0", "Result: ALLOWED"},
		{"cd1", "Result: BLOCKED"},
		{"sda0", "Result: BLOCKED"},
	}
	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			output, err := executeCommand(rootCmd, "-c", conf, "-t", tt.device)
			if err != nil {
				t.Fatalf("command failed: %v\nOutput: %s", err, output)
			}
			if !strings.Contains(output, "Testing device: "+tt.device) {
				t.Errorf("output missing device line:\n%s", output)
			}
			if !strings.Contains(output, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, output)
			}
		})
	}
}

func TestTestDevice_MissingConfigUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.conf")

	output, err := executeCommand(rootCmd, "-c", missing, "-t", "sda0")
	if err != nil {
		t.Fatalf("command failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Warning:") {
		t.Errorf("expected a warning about the missing config file:\n%s", output)
	}
	if !strings.Contains(output, "Result: ALLOWED") {
		t.Errorf("empty allow-list should allow every device:\n%s", output)
	}
}

func TestTestDevice_EnvOverridesFile(t *testing.T) {
	conf := writeConfig(t, "DEMI_ALLOWED_DEVICES=md*\n")
	t.Setenv("DEMI_ALLOWED_DEVICES", "cd0")

	output, err := executeCommand(rootCmd, "-c", conf, "-t", "md0")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(output, "Result: BLOCKED") {
		t.Errorf("environment should override the config file:\n%s", output)
	}
}

func TestRoot_InvalidConfigFails(t *testing.T) {
	conf := writeConfig(t, "DEMI_SOURCE=carrier-pigeon\n")

	_, err := executeCommand(rootCmd, "-c", conf, "-t", "md0")
	if err == nil {
		t.Fatal("expected validation error for unknown source")
	}
	if !strings.Contains(err.Error(), "DEMI_SOURCE") {
		t.Errorf("error %q does not name the bad setting", err)
	}
}

func TestCheck_YAML(t *testing.T) {
	conf := writeConfig(t, "DEMI_ALLOWED_DEVICES=md[0-3] cd0\nDEMI_LOCK_TIMEOUT_SECONDS=0\n")

	output, err := executeCommand(rootCmd, "check", "-c", conf, "--output", "yaml", "md2", "md7", "cd0")
	if err != nil {
		t.Fatalf("check failed: %v\nOutput: %s", err, output)
	}

	var report checkReport
	if err := yaml.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("output is not yaml: %v\n%s", err, output)
	}
	if report.Filter != "md[0-3] cd0" {
		t.Errorf("filter = %q", report.Filter)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected a warning for the zero lock timeout")
	}

	want := map[string]bool{"md2": true, "md7": false, "cd0": true}
	if len(report.Devices) != len(want) {
		t.Fatalf("devices = %+v", report.Devices)
	}
	for _, d := range report.Devices {
		if d.Allowed != want[d.Device] {
			t.Errorf("%s allowed = %v, want %v", d.Device, d.Allowed, want[d.Device])
		}
	}
	if report.Devices[0].Rule != "md[0-3]" {
		t.Errorf("md2 matched rule %q, want md[0-3]", report.Devices[0].Rule)
	}

	settings := make(map[string]string)
	for _, s := range report.Config {
		settings[s.Key] = s.Value
	}
	if settings["DEMI_LOCK_TIMEOUT_SECONDS"] != "5" {
		t.Errorf("lock timeout = %q, want defaulted 5", settings["DEMI_LOCK_TIMEOUT_SECONDS"])
	}
}

func TestCheck_SampleDevicesText(t *testing.T) {
	conf := writeConfig(t, "DEMI_ALLOWED_DEVICES=vtbd*\n")

	output, err := executeCommand(rootCmd, "check", "-c", conf)
	if err != nil {
		t.Fatalf("check failed: %v\nOutput: %s", err, output)
	}
	for _, name := range sampleDevices {
		if !strings.Contains(output, name) {
			t.Errorf("sample device %s missing from output", name)
		}
	}
	if got := strings.Count(output, "ALLOWED"); got != 2 {
		t.Errorf("ALLOWED count = %d, want 2 (vtbd0, vtbd1)\n%s", got, output)
	}
	if !strings.Contains(output, "DEMI_ALLOWED_DEVICES") {
		t.Error("configuration section missing")
	}
}

func TestCheck_InvalidOutput(t *testing.T) {
	conf := writeConfig(t, "")
	if _, err := executeCommand(rootCmd, "check", "-c", conf, "--output", "xml"); err == nil {
		t.Error("expected error for --output xml")
	}
}

func TestVersionCommand(t *testing.T) {
	output, err := executeCommand(rootCmd, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(output, "devd-watcher "+version) {
		t.Errorf("version output = %q", output)
	}
}
