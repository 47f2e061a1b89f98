// Package testutil provides testing utilities for crossing tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// CrossingPair is a text scenario with two single-vehicle fleets whose
// paths share zone 1: a westbound vehicle from lane 0 and a southbound
// vehicle from lane 1.
const CrossingPair = `# westbound and southbound, both through zone 1
2 2
0 2 0 1
0 14 2 -2 0 0 0
1 3 0 1
0 -2 14 0 -2 0 0
`

// CrossingPairYAML is CrossingPair in the YAML scenario format.
const CrossingPairYAML = `fleets:
  - lane: 0
    dest: 2
    fleet: 0
    vehicles:
      - id: 0
        location: [14, 2]
        velocity: [-2, 0]
  - lane: 1
    dest: 3
    fleet: 0
    vehicles:
      - id: 0
        location: [-2, 14]
        velocity: [0, -2]
`

// WriteFile writes content to name inside a temporary directory and returns
// the full path. The directory is removed when the test completes.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", name, err)
	}
	return path
}

// WriteScenario writes a text scenario and returns its path.
func WriteScenario(t *testing.T, content string) string {
	t.Helper()
	return WriteFile(t, "scenario.txt", content)
}

// IsolateConfig points the config directory at a fresh temporary directory,
// clears CROSSING_* overrides and resets viper for the duration of the test.
// It returns the temporary config directory.
func IsolateConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "CROSSING_") {
			// Setenv restores the value after the test; unset it meanwhile
			t.Setenv(key, "")
			_ = os.Unsetenv(key)
		}
	}

	viper.Reset()
	t.Cleanup(viper.Reset)
	return filepath.Join(dir, "crossing")
}
