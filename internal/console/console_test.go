package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsole_StatusLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewWithWriter(&buf, false)

	c.Success("backup complete")
	c.Error("restore failed")
	c.Warning("delivery skipped")
	c.Info("sweeping backups")

	out := buf.String()
	assert.Contains(t, out, "✓ backup complete")
	assert.Contains(t, out, "✗ restore failed")
	assert.Contains(t, out, "! delivery skipped")
	assert.Contains(t, out, "• sweeping backups")
}

func TestConsole_ColorDisabled(t *testing.T) {
	var buf bytes.Buffer
	c := NewWithWriter(&buf, false)

	c.Success("plain")

	assert.False(t, c.ColorEnabled())
	assert.NotContains(t, buf.String(), "\x1b[")
}
