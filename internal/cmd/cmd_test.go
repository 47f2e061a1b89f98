package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/crossing/internal/testutil"
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

// resetFlags restores every flag of c and its subcommands to its default so
// values do not leak between executions.
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

// setupTestEnvironment isolates the configuration and silences logging.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	dir := testutil.IsolateConfig(t)
	t.Setenv("CROSSING_LOGGING_ENABLED", "false")
	return dir
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "crossing" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "crossing")
	}

	expectedCmds := []string{"config", "run", "schedule", "version"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, name := range expectedCmds {
		if !cmdMap[name] {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.HasPrefix(output, "crossing dev (") {
		t.Errorf("version output = %q, want prefix %q", output, "crossing dev (")
	}
	if !strings.Contains(output, "wire ") {
		t.Errorf("version output %q does not name the wire version", output)
	}
}

func TestScheduleCommand(t *testing.T) {
	setupTestEnvironment(t)
	path := testutil.WriteScenario(t, testutil.CrossingPair)

	output, err := executeCommand(rootCmd, "schedule", "-i", path)
	if err != nil {
		t.Fatalf("schedule command failed: %v\n%s", err, output)
	}

	for _, want := range []string{
		"PASSING ORDER",
		"1/0/0 → 0/0/0",
		"DEADLINES",
		"1/0/0\t1→2\t-\t5.000\t7.000\t-",
		"0/0/0\t0→1\t6.000\t8.000\t-\t-",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("schedule output missing %q:\n%s", want, output)
		}
	}
}

func TestScheduleCommand_JSON(t *testing.T) {
	setupTestEnvironment(t)
	path := testutil.WriteFile(t, "pair.yaml", testutil.CrossingPairYAML)

	output, err := executeCommand(rootCmd, "schedule", "-i", path, "--json", "--iterations", "50", "--seed", "7")
	if err != nil {
		t.Fatalf("schedule command failed: %v\n%s", err, output)
	}

	var got scheduleOutput
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	if diff := cmp.Diff([]string{"1/0/0", "0/0/0"}, got.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	wantDeadlines := map[string][]float64{
		"1/0/0": {-1, 5, 7, -1},
		"0/0/0": {6, 8, -1, -1},
	}
	if diff := cmp.Diff(wantDeadlines, got.Deadlines); diff != "" {
		t.Errorf("deadlines mismatch (-want +got):\n%s", diff)
	}
	if got.MeanDelay < 0 {
		t.Errorf("mean delay = %v, want >= 0", got.MeanDelay)
	}
}

func TestScheduleCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
		want string
	}{
		{
			name: "missing input flag",
			args: func(t *testing.T) []string { return []string{"schedule"} },
			want: `required flag(s) "input" not set`,
		},
		{
			name: "missing file",
			args: func(t *testing.T) []string {
				return []string{"schedule", "-i", filepath.Join(t.TempDir(), "nope.txt")}
			},
			want: "nope.txt",
		},
		{
			name: "malformed scenario",
			args: func(t *testing.T) []string {
				return []string{"schedule", "-i", testutil.WriteScenario(t, "1\n0 2 0\n")}
			},
			want: "line",
		},
		{
			name: "zero iterations",
			args: func(t *testing.T) []string {
				return []string{"schedule", "-i", testutil.WriteScenario(t, testutil.CrossingPair), "--iterations", "0"}
			},
			want: "iterations must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestEnvironment(t)
			_, err := executeCommand(rootCmd, tt.args(t)...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestRunCommand(t *testing.T) {
	setupTestEnvironment(t)
	path := testutil.WriteScenario(t, testutil.CrossingPair)

	output, err := executeCommand(rootCmd, "run", "-i", path, "--show-metrics")
	if err != nil {
		t.Fatalf("run command failed: %v\n%s", err, output)
	}

	for _, want := range []string{
		"Zone conflicts:   none",
		"FINAL ASSIGNMENT",
		"1/0/0\t1→2\t-\t5.000\t7.000\t-",
		"crossing_consensus_proposals_computed_total",
		"crossing_episode_vehicles_finished_total",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("run output missing %q:\n%s", want, output)
		}
	}
}

func TestConfigCommand(t *testing.T) {
	setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"# Config file: (none - using defaults)", "iterations: 200", "safety_gap: 1"} {
		if !strings.Contains(output, want) {
			t.Errorf("config show output missing %q:\n%s", want, output)
		}
	}
}

func TestConfigCommand_InitSetShow(t *testing.T) {
	dir := setupTestEnvironment(t)
	file := filepath.Join(dir, "config.yaml")

	output, err := executeCommand(rootCmd, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(output, file) {
		t.Errorf("config init output %q does not name %s", output, file)
	}
	if _, err := os.Stat(file); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should fail")
	}

	if _, err := executeCommand(rootCmd, "config", "set", "scheduler.iterations", "500"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}

	output, err = executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(output, "# Config file: "+file) {
		t.Errorf("config show did not read %s:\n%s", file, output)
	}
	if !strings.Contains(output, "iterations: 500") {
		t.Errorf("config show output missing the new value:\n%s", output)
	}
}

func TestConfigCommand_SetRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "unknown key", key: "scheduler.budget", value: "1", want: "unknown configuration key"},
		{name: "not an integer", key: "scheduler.iterations", value: "many", want: "expected integer"},
		{name: "not a bool", key: "logging.enabled", value: "maybe", want: "expected true or false"},
		{name: "fails validation", key: "scheduler.iterations", value: "-5", want: "scheduler.iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupTestEnvironment(t)
			_, err := executeCommand(rootCmd, "config", "set", tt.key, tt.value)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
			if _, err := os.Stat(filepath.Join(dir, "config.yaml")); !os.IsNotExist(err) {
				t.Error("rejected value should not write a config file")
			}
		})
	}
}

func TestConfigCommand_SetNegativeValue(t *testing.T) {
	dir := setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "config", "set", "kinematics.min_acceleration", "-2")
	if err != nil {
		t.Fatalf("config set failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Set kinematics.min_acceleration = -2") {
		t.Errorf("config set output = %q", output)
	}

	content, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(content), "min_acceleration: -2") {
		t.Errorf("config file missing the new value:\n%s", content)
	}
}

func TestConfigCommand_RejectedValueIsNotKept(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := executeCommand(rootCmd, "config", "set", "scheduler.iterations", "-5"); err == nil {
		t.Fatal("expected a validation error")
	}
	if got := viper.GetInt("scheduler.iterations"); got != 200 {
		t.Errorf("scheduler.iterations = %d after a rejected set, want 200", got)
	}

	output, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(output, "iterations: 200") {
		t.Errorf("config show output missing the default:\n%s", output)
	}
}

func TestConfigPathCommand(t *testing.T) {
	dir := setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	for _, want := range []string{
		"Default path: " + filepath.Join(dir, "config.yaml"),
		"CROSSING_SCHEDULER_ITERATIONS",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("config path output missing %q:\n%s", want, output)
		}
	}
}
