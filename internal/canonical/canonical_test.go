package canonical

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munistream/signature/internal/domain"
)

func TestMarshal_KeyOrderIndependent(t *testing.T) {
	a, err := Decode(strings.NewReader(`{"b":2,"a":1,"c":{"z":true,"y":null}}`))
	require.NoError(t, err)
	b, err := Decode(strings.NewReader(`{"c":{"y":null,"z":true},"a":1,"b":2}`))
	require.NoError(t, err)

	ab, err := Marshal(a)
	require.NoError(t, err)
	bb, err := Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, ab, bb)
	assert.Equal(t, `{"a": 1, "b": 2, "c": {"y": null, "z": true}}`, string(ab))
}

func TestMarshal_GoLiteralsMatchDecoded(t *testing.T) {
	decoded, err := Decode(strings.NewReader(`{"a":1,"b":2}`))
	require.NoError(t, err)
	lit := domain.Payload{"b": 2, "a": 1}

	x, err := Marshal(decoded)
	require.NoError(t, err)
	y, err := Marshal(lit)
	require.NoError(t, err)
	assert.Equal(t, string(x), string(y))
}

func TestMarshal_Numbers(t *testing.T) {
	cases := map[string]string{
		`1`:                     `1`,
		`-0`:                    `0`,
		`12345678901234567890`:  `12345678901234567890`,
		`1.0`:                   `1.0`,
		`1.5`:                   `1.5`,
		`1e3`:                   `1000.0`,
		`0.0001`:                `0.0001`,
		`0.00001`:               `1e-05`,
		`1e15`:                  `1000000000000000.0`,
		`1e16`:                  `1e+16`,
		`1.5e20`:                `1.5e+20`,
		`-2.25`:                 `-2.25`,
		`0.1`:                   `0.1`,
		`123456.789`:            `123456.789`,
	}
	for in, want := range cases {
		got, err := Marshal(json.Number(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, string(got), in)
	}
}

func TestMarshal_StringEscaping(t *testing.T) {
	got, err := Marshal(map[string]any{"k": "a\"b\\c\n\t\u0001é😀\u007f/"})
	require.NoError(t, err)
	assert.Equal(t, `{"k": "a\"b\\c\n\t\u0001\u00e9\ud83d\ude00\u007f/"}`, string(got))
}

func TestMarshal_Arrays(t *testing.T) {
	got, err := Marshal([]any{1, "x", []any{}, map[string]any{}, false})
	require.NoError(t, err)
	assert.Equal(t, `[1, "x", [], {}, false]`, string(got))
}

func TestMarshal_RejectsForeignTypes(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSigningBytes_StripsDataHash(t *testing.T) {
	p := domain.Payload{"a": 1, "data_hash": "abc"}
	got, err := SigningBytes(p)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, string(got))
	assert.Contains(t, p, "data_hash", "input must not be mutated")
}

func TestHash(t *testing.T) {
	p := domain.Payload{"a": 1}
	h256, err := Hash(p, "sha256")
	require.NoError(t, err)
	assert.Len(t, h256, 64)
	h512, err := Hash(p, "SHA512")
	require.NoError(t, err)
	assert.Len(t, h512, 128)
	_, err = Hash(p, "MD5")
	require.ErrorIs(t, err, domain.ErrUnsupportedAlgorithm)
}

func TestDecode_RoundTripThroughJSONKeepsIntegers(t *testing.T) {
	p, err := Decode(strings.NewReader(`{"n":7,"f":7.0}`))
	require.NoError(t, err)
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var back domain.Payload
	require.NoError(t, Unmarshal(raw, &back))
	got, err := Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, `{"f": 7.0, "n": 7}`, string(got))
}

func TestDecode_RejectsNonObject(t *testing.T) {
	_, err := Decode(strings.NewReader(`null`))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = Decode(strings.NewReader(`{`))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
