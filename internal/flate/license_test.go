package flate

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedFilesCarryLicense(t *testing.T) {
	t.Parallel()

	license, err := os.ReadFile("LICENSE")
	require.NoError(t, err)
	assert.Contains(t, string(license), "Redistribution and use in source and binary forms")

	for _, name := range []string{"bitreader.go", "huffman.go", "inflate.go", "window.go"} {
		src, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(src), "// Copyright "), "%s lacks a copyright header", name)
		assert.Contains(t, string(src), "license that can be found in the LICENSE file", name)
	}
}
