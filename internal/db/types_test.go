package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSliceScan(t *testing.T) {
	tests := []struct {
		name string
		src  interface{}
		want StringSlice
	}{
		{name: "null column", src: nil, want: StringSlice{}},
		{name: "bytes", src: []byte(`["milk","eggs"]`), want: StringSlice{"milk", "eggs"}},
		{name: "string", src: `["nuts"]`, want: StringSlice{"nuts"}},
		{name: "json null", src: `null`, want: StringSlice{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s StringSlice
			require.NoError(t, s.Scan(tt.src))
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestStringSliceScanRejectsUnknownType(t *testing.T) {
	var s StringSlice
	assert.Error(t, s.Scan(42))
	assert.Error(t, s.Scan([]byte("not json")))
}

func TestStringSliceValue(t *testing.T) {
	v, err := StringSlice(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = StringSlice{"dairy"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["dairy"]`, v)
}

func TestFromCSV(t *testing.T) {
	assert.Equal(t, StringSlice{"milk", "tree nuts"}, FromCSV(" milk, ,tree nuts,"))
	assert.Equal(t, StringSlice{}, FromCSV(""))
}

func TestContainsFold(t *testing.T) {
	s := StringSlice{"Italian", "Thai"}
	assert.True(t, s.ContainsFold("italian"))
	assert.False(t, s.ContainsFold("mexican"))
}
