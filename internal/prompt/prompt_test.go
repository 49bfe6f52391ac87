package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orionlabs/orion-go/internal/lang"
)

func TestBuild_OverrideReplacesEverything(t *testing.T) {
	override := "You are a pirate. Answer in pirate speak."
	got := Build(lang.Hinglish, override)
	require.Equal(t, override, got)
	require.NotContains(t, got, "Language Mode")
}

func TestBuild_SuffixPerMode(t *testing.T) {
	tests := []struct {
		mode   lang.Mode
		suffix string
	}{
		{lang.English, "Language Mode: English"},
		{lang.Hindi, "Language Mode: Hindi"},
		{lang.Hinglish, "Language Mode: Hinglish"},
	}
	for _, tc := range tests {
		got := Build(tc.mode, "")
		require.True(t, strings.HasPrefix(got, baseRules), "mode %s must start with the base rules", tc.mode)
		require.Contains(t, got, tc.suffix)
	}
}

func TestBuild_UnknownModeFallsBackToEnglish(t *testing.T) {
	got := Build(lang.Mode("klingon"), "")
	require.Contains(t, got, "Language Mode: English")
}
