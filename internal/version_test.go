package internal

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestFullVersion(t *testing.T) {
	orig := [3]string{Version, Prerelease, Metadata}
	t.Cleanup(func() {
		Version, Prerelease, Metadata = orig[0], orig[1], orig[2]
	})

	type testCase struct {
		version, prerelease, metadata string
		expected                      string
	}

	for _, tc := range []testCase{
		{version: "0.1.0", expected: "0.1.0"},
		{version: "0.1.0", metadata: "dev", expected: "0.1.1+dev"},
		{version: "0.1.0", prerelease: "beta", expected: "0.1.0-beta"},
		{version: "0.1.0", prerelease: "rc.1", metadata: "abc123", expected: "0.1.0-rc.1+abc123"},
		{version: "1.2.3", prerelease: "beta", metadata: "dev", expected: "1.2.4-beta+dev"},
	} {
		t.Run(tc.expected, func(t *testing.T) {
			Version, Prerelease, Metadata = tc.version, tc.prerelease, tc.metadata
			assert.Equal(t, FullVersion(), tc.expected)
		})
	}

	t.Run("invalid version", func(t *testing.T) {
		Version, Prerelease, Metadata = "one", "", ""
		defer func() {
			assert.Assert(t, recover() != nil)
		}()
		FullVersion()
	})
}
