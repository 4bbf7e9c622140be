package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgv(t *testing.T) {
	t.Setenv("HOME", "/home/ada")
	t.Setenv("COPY_FLAGS", "--primary")

	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "wl-copy --trim-newline", want: []string{"wl-copy", "--trim-newline"}},
		{name: "double quotes group", input: `notify-send "Transcript copied"`, want: []string{"notify-send", "Transcript copied"}},
		{name: "single quotes group", input: `xclip -selection 'clip board'`, want: []string{"xclip", "-selection", "clip board"}},
		{name: "escaped space", input: `copy hello\ world`, want: []string{"copy", "hello world"}},
		{name: "empty quoted arg kept", input: `copy ""`, want: []string{"copy", ""}},
		{name: "env var", input: `wl-copy $COPY_FLAGS`, want: []string{"wl-copy", "--primary"}},
		{name: "braced env var in double quotes", input: `wl-copy "${COPY_FLAGS}"`, want: []string{"wl-copy", "--primary"}},
		{name: "no expansion in single quotes", input: `echo '$COPY_FLAGS'`, want: []string{"echo", "$COPY_FLAGS"}},
		{name: "lone dollar", input: `echo $`, want: []string{"echo", "$"}},
		{name: "tilde", input: `~/bin/copy --trim`, want: []string{"/home/ada/bin/copy", "--trim"}},
		{name: "tilde mid word", input: `copy a~/b`, want: []string{"copy", "a~/b"}},
		{name: "leading comment", input: `# wl-copy --trim-newline`, want: nil},
		{name: "unterminated quote", input: `copy "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `copy hello\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgv(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/ada")
	t.Setenv("DATA", "/srv/data")

	require.Equal(t, "/home/ada", expandPath("~"))
	require.Equal(t, filepath.Join("/home/ada", "colloquy.db"), expandPath("~/colloquy.db"))
	require.Equal(t, "/srv/data/colloquy.db", expandPath("$DATA/colloquy.db"))
	require.Equal(t, "relative.db", expandPath(" relative.db "))
}

func TestMustParseArgvPanicsOnInvalidInput(t *testing.T) {
	require.Panics(t, func() {
		_ = mustParseArgv(`copy "unterminated`)
	})
}
