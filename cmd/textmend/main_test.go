package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Guizzs26/go-textmend/pkg/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStdinStrict(t *testing.T) {
	out, err := run(t, []byte{0x99, 0xE2, 0x84, 0xA2, 0x99})
	require.NoError(t, err)
	assert.Equal(t, "™™™", out)
}

func TestStdinStrictFailsOnUndefinedByte(t *testing.T) {
	_, err := run(t, []byte("ab\x81"))
	require.Error(t, err)
	assert.ErrorIs(t, err, encoding.ErrInvalidLegacyByte)
	assert.Contains(t, err.Error(), "0x81 at offset 2")
}

func TestReplacePolicy(t *testing.T) {
	out, err := run(t, []byte("ab\x81c"), "--policy", "replace")
	require.NoError(t, err)
	assert.Equal(t, "ab�c", out)
}

func TestSkipPolicyStreams(t *testing.T) {
	input := bytes.Repeat([]byte("caf\xe9\x9d"), 5000)

	out, err := run(t, input, "-p", "skip")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("café", 5000), out)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.txt")
	second := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(first, []byte("caf\xe9 "), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("a\xe2\x80\xa0cd"), 0o644))

	out, err := run(t, nil, first, second)
	require.NoError(t, err)
	assert.Equal(t, "café a†cd", out)
}

func TestUnknownPolicy(t *testing.T) {
	_, err := run(t, []byte("x"), "-p", "lenient")
	assert.Error(t, err)
}
