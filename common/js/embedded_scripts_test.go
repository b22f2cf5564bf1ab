package js

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall(t *testing.T) {
	t.Parallel()

	s, err := Call("(a, b) => a + b\n", "x\"y", []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, `((a, b) => a + b)("x\"y", [1,2])`, s)

	_, err = Call("() => 1", func() {})
	assert.Error(t, err)
}

func TestScriptsEmbedded(t *testing.T) {
	t.Parallel()

	for name, s := range map[string]string{
		"element_info":     ElementInfoScript,
		"scroll_into_view": ScrollIntoViewScript,
		"select_option":    SelectOptionScript,
		"set_input_files":  SetInputFilesScript,
		"clear_cookies":    ClearCookiesScript,
		"page_size":        PageSizeScript,
	} {
		assert.Contains(t, s, "=>", name)
	}
}
