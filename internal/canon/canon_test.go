package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes_FormatsMatchSpec(t *testing.T) {
	h := HashBytes([]byte("hello"))
	assert.Len(t, h.Full, 64)
	assert.Len(t, h.First8, 8)
	assert.Equal(t, h.Full[:8], h.First8)
}

func TestHashBytes_Deterministic(t *testing.T) {
	a := HashBytes([]byte("same input"))
	b := HashBytes([]byte("same input"))
	assert.Equal(t, a, b)
}

func TestCanonicalizeYAML_KeyOrderIndependent(t *testing.T) {
	a, err := CanonicalizeYAML([]byte("b: 2\na: 1\n"))
	require.NoError(t, err)
	b, err := CanonicalizeYAML([]byte("a: 1\nb: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, a, b, "JCS must produce identical bytes regardless of source field order")
}

func TestCanonicalizeYAML_IdempotentOnCanonicalForm(t *testing.T) {
	once, err := CanonicalizeYAML([]byte("goals:\n  - shorten urls\nusers:\n  - anonymous\n"))
	require.NoError(t, err)

	// Re-canonicalizing the canonical JSON bytes (as YAML, since JSON is a
	// YAML subset) must be a no-op.
	twice, err := CanonicalizeYAML(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestCanonicalizeYAML_MalformedInputReturnsOffsetError(t *testing.T) {
	_, err := CanonicalizeYAML([]byte("key: [unclosed"))
	require.Error(t, err)
	var oe *OffsetError
	require.ErrorAs(t, err, &oe)
}

func TestCanonicalizeMarkdown_NormalizesLineEndings(t *testing.T) {
	out := CanonicalizeMarkdown([]byte("line1\r\nline2\r\n"))
	assert.Equal(t, "line1\nline2\n", string(out))
}

func TestCanonicalizeMarkdown_TrimsTrailingWhitespace(t *testing.T) {
	out := CanonicalizeMarkdown([]byte("line1   \nline2\t\n"))
	assert.Equal(t, "line1\nline2\n", string(out))
}

func TestCanonicalizeMarkdown_CollapsesTrailingBlankLines(t *testing.T) {
	out := CanonicalizeMarkdown([]byte("line1\n\n\n\n"))
	assert.Equal(t, "line1\n\n", string(out))
}

func TestCanonicalizeMarkdown_EnsuresTerminalNewline(t *testing.T) {
	out := CanonicalizeMarkdown([]byte("line1"))
	assert.Equal(t, "line1\n", string(out))
}

func TestCanonicalizeMarkdown_NormalizesTildeFencesToBackticks(t *testing.T) {
	out := CanonicalizeMarkdown([]byte("~~~go\nfmt.Println(1)\n~~~\n"))
	assert.Equal(t, "```go\nfmt.Println(1)\n```\n", string(out))
}

func TestCanonicalizeMarkdown_FenceNormalizationIsIdempotent(t *testing.T) {
	once := CanonicalizeMarkdown([]byte("~~~~\ncode\n~~~~\n"))
	twice := CanonicalizeMarkdown(once)
	assert.Equal(t, once, twice)
}

func TestJCSMarshal_OrderIndependence(t *testing.T) {
	a, err := JCSMarshal(map[string]any{"b": 2, "a": 1, "metadata": map[string]any{"z": 1, "y": 2}})
	require.NoError(t, err)
	b, err := JCSMarshal(map[string]any{"a": 1, "metadata": map[string]any{"y": 2, "z": 1}, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
