package sections_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/nmls-crawler/cmd/sections"
)

func TestCommand_PrintsLexicons(t *testing.T) {
	var buf bytes.Buffer
	cmd := sections.Command()
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	out := buf.String()
	for _, want := range []string{"prodazha", "arenda", "kvartir", "kommercheskoy-nedvizhimosti"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("prodazha")), bytes.Index(buf.Bytes(), []byte("arenda")))
}
