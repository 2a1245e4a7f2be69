package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("📚", "Opening collection...")

	output := buf.String()
	assert.Contains(t, output, "📚")
	assert.Contains(t, output, "Opening collection...")
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("", "3 chunks")

	assert.Equal(t, "   3 chunks\n", buf.String())
}

func TestWriter_MessageKinds(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("ingested %d documents", 2)
	w.Warningf("skipping %s", "empty.txt")
	w.Errorf("cannot read %s", "missing.pdf")

	output := buf.String()
	assert.Contains(t, output, "✅ ingested 2 documents")
	assert.Contains(t, output, "⚠️  skipping empty.txt")
	assert.Contains(t, output, "❌ cannot read missing.pdf")
}

func TestWriter_Indent_IndentsEveryLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Indent("first line\nsecond line")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "   "), "line %q not indented", line)
	}
}

func TestWriter_BufferIsNotATerminal(t *testing.T) {
	w := New(&bytes.Buffer{})
	assert.False(t, w.IsTerminal())
}

func TestWriter_Progress_SilentOffTerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(1, 4, "file.pdf")
	w.Progress(4, 4, "file.pdf")

	assert.Empty(t, buf.String())
}

func TestWriter_Progress_RendersOnTerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithTerminal(buf, true)

	w.Progress(2, 4, "file.pdf")

	output := buf.String()
	assert.Contains(t, output, "50%")
	assert.Contains(t, output, "file.pdf")
	assert.Contains(t, output, "█")
	assert.NotContains(t, output, "\n")

	// Completion terminates the line.
	w.Progress(4, 4, "file.pdf")
	assert.Contains(t, buf.String(), "\n")
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("█", 15)+strings.Repeat("░", 15), renderProgressBar(1, 2, 30))
	assert.Equal(t, strings.Repeat("█", 30), renderProgressBar(2, 2, 30))
	assert.Equal(t, strings.Repeat("░", 30), renderProgressBar(0, 2, 30))
	assert.Equal(t, strings.Repeat("░", 30), renderProgressBar(1, 0, 30))
	assert.Equal(t, strings.Repeat("█", 30), renderProgressBar(5, 2, 30))
}
