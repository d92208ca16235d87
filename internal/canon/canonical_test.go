package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	data, err := Marshal(map[string]any{
		"zip":       "13021",
		"id":        "050100|1.-1-1",
		"roll_year": int64(2023),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"050100|1.-1-1","roll_year":2023,"zip":"13021"}`, string(data))
}

func TestMarshal_Null(t *testing.T) {
	data, err := Marshal(map[string]any{"full_value_change_pct": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"full_value_change_pct":null}`, string(data))
}

func TestMarshal_NoHTMLEscape(t *testing.T) {
	data, err := Marshal("A&B <LOT>")
	require.NoError(t, err)
	assert.Equal(t, `"A&B <LOT>"`, string(data))
}

func TestMarshal_NFC(t *testing.T) {
	decomposed, err := Marshal("Cafe\u0301")
	require.NoError(t, err)
	composed, err := Marshal("Caf\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshal_LineSeparatorsUnescaped(t *testing.T) {
	data, err := Marshal("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(data))

	data, err = Marshal(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(data))
}

func TestMarshal_BytesAsText(t *testing.T) {
	data, err := Marshal([]any{[]byte("0.8800"), int(3), true})
	require.NoError(t, err)
	assert.Equal(t, `["0.8800",3,true]`, string(data))
}

func TestMarshal_RejectsFloats(t *testing.T) {
	_, err := Marshal(map[string]any{"ratio": 0.88})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-16 (surrogates start at 0xD800)
	// but after it in UTF-8 byte order.
	keys := SortedKeys(map[string]any{"\U0001F600": 1, "\uff61": 2})
	assert.Equal(t, []string{"\U0001F600", "\uff61"}, keys)
}
