package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/visionchat/pkg/view"
)

func TestTerminalDisplayPrintsIncrementally(t *testing.T) {
	var out, errOut bytes.Buffer
	d := newTerminalDisplay(&out, &errOut)

	require.NoError(t, d.Warning(view.Warning("")))
	require.NoError(t, d.Response(view.Pending()))
	require.NoError(t, d.Response(view.Streaming("2+2")))
	require.NoError(t, d.Response(view.Streaming("2+2 equals")))
	require.NoError(t, d.Response(view.Final("2+2 equals 4.")))

	assert.Equal(t, "2+2 equals 4.\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestTerminalDisplayErrorsGoToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	d := newTerminalDisplay(&out, &errOut)

	require.NoError(t, d.Warning(view.Warning("Please enter your Google API key in the sidebar.")))
	require.NoError(t, d.Response(view.ErrorBubble("Error: boom")))

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Please enter your Google API key")
	assert.Contains(t, errOut.String(), "Error: boom")
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("VISIONCHAT_API_KEY", "from-env")

	key, err := resolveAPIKey("  from-flag ", strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", key)

	key, err = resolveAPIKey("", strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	t.Setenv("VISIONCHAT_API_KEY", "")
	key, err = resolveAPIKey("", strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "visionchat dev")
}
