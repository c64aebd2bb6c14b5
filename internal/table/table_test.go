package table

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCellAccess(t *testing.T) {
	tbl := New("idc", nil, []string{"detchip", "filter1", "scale"})
	tbl.AddRow(map[string]any{"detchip": int16(1), "filter1": "F606W  ", "scale": float32(0.05)})

	require.Equal(t, 1, tbl.NumRows())
	require.True(t, tbl.HasColumn("FILTER1"))
	require.False(t, tbl.HasColumn("FILTER2"))
	require.NotNil(t, tbl.Header)

	chip, err := tbl.Float(0, "DETCHIP")
	require.NoError(t, err)
	require.Equal(t, 1.0, chip)

	f, err := tbl.String(0, "filter1")
	require.NoError(t, err)
	require.Equal(t, "F606W", f)

	s, err := tbl.String(0, "detchip")
	require.NoError(t, err)
	require.Equal(t, "1", s)
}

func TestCellErrors(t *testing.T) {
	tbl := New("idc", nil, []string{"filter1"})
	tbl.AddRow(map[string]any{"filter1": "CLEAR1L"})

	_, err := tbl.Value(1, "FILTER1")
	require.Error(t, err)
	_, err = tbl.Value(0, "FILTER2")
	require.Error(t, err)
	_, err = tbl.Float(0, "FILTER1")
	require.Error(t, err)
}
