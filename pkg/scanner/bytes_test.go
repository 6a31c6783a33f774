package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexOf(t *testing.T) {
	assert.Equal(t, 2, IndexOf([]byte(`[{"ev":"XA"}]`), []byte(`"ev"`)))
	assert.Equal(t, -1, IndexOf([]byte(`{"status":"ok"}`), []byte(`"ev"`)))
	assert.Equal(t, -1, IndexOf([]byte(`ab`), []byte(`abc`)))
	assert.Equal(t, -1, IndexOf([]byte(`abc`), nil))
}

func TestScanStringField(t *testing.T) {
	testCases := []struct {
		desc    string
		payload string
		want    string
		ok      bool
	}{
		{desc: "compact", payload: `{"ev":"status","status":"connected"}`, want: "status", ok: true},
		{desc: "spaced", payload: "{ \"ev\" :\t \"XT\" }", want: "XT", ok: true},
		{desc: "missing key", payload: `{"status":"connected"}`},
		{desc: "number value", payload: `{"ev":1}`},
		{desc: "unterminated", payload: `{"ev":"XA`},
		{desc: "no colon", payload: `{"ev"`},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, ok := ScanStringField([]byte(tc.payload), []byte(`"ev"`))
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestIsSpace(t *testing.T) {
	for _, b := range []byte(" \t\n\r") {
		assert.True(t, IsSpace(b))
	}
	assert.False(t, IsSpace('x'))
}
