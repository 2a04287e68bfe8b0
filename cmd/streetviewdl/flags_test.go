package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	addAreaFlags(cmd)
	addDownloadFlags(cmd)
	return cmd
}

func TestCommandFlagsOnlyChanged(t *testing.T) {
	cmd := newFlagCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--extract", "roads.geojson",
		"--spacing", "30",
		"--headings", "0,90",
		"--rate-limit", "100",
		"--no-cache",
	}))

	flags := commandFlags(cmd)

	assert.Equal(t, "roads.geojson", flags["extract"])
	assert.Equal(t, 30.0, flags["spacing"])
	assert.Equal(t, []float64{0, 90}, flags["headings"])
	assert.Equal(t, 100, flags["requests-per-minute"])
	assert.Equal(t, true, flags["no-cache"])

	for _, key := range []string{"output", "aoi", "bbox", "concurrency", "metadata-only", "profile"} {
		_, ok := flags[key]
		assert.False(t, ok, key)
	}
}

func TestCommandFlagsIgnoresMissingFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "bare"}
	assert.Empty(t, commandFlags(cmd))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "***", mask("short"))
	assert.Equal(t, "AIza...wxyz", mask("AIzaSyA0123456789wxyz"))
}
