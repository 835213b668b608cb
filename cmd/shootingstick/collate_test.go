package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCollateOrdersByType(t *testing.T) {
	var buf bytes.Buffer
	err := runCollate(&buf, []string{`[1]`, `"b"`, `{"a":1}`, `"a"`, `2`, `true`, `null`}, false)
	require.NoError(t, err)
	assert.Equal(t, "null\ntrue\n2\n\"a\"\n\"b\"\n[1]\n{\"a\":1}\n", buf.String())
}

func TestRunCollateShowsKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runCollate(&buf, []string{`null`}, true))
	key, line, ok := strings.Cut(strings.TrimSuffix(buf.String(), "\n"), "\t")
	require.True(t, ok)
	assert.NotEmpty(t, key)
	assert.Equal(t, "null", line)
}

func TestRunCollateRejectsInvalidJSON(t *testing.T) {
	err := runCollate(&bytes.Buffer{}, []string{`{`}, false)
	assert.ErrorContains(t, err, "{")
}

func TestReadLinesSkipsBlanks(t *testing.T) {
	lines, err := readLines(strings.NewReader("1\n\n  \"x\"  \n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", `"x"`}, lines)
}

func TestCollateSamplesParse(t *testing.T) {
	require.NoError(t, runCollate(&bytes.Buffer{}, collateSamples, false))
}
