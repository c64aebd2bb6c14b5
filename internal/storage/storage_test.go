package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"wcscal/internal/header"
	"wcscal/internal/shiftext"
	"wcscal/internal/wcs"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "wcscal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobLifecycle(t *testing.T) {
	s := newStore(t)
	rec := JobRecord{ID: "job-1", JobType: "fit", Status: "queued", Inputs: []string{"a.fits", "b.fits"}, OptionsJSON: `{"x":1}`}
	require.NoError(t, s.RecordJobQueued(rec))
	require.NoError(t, s.RecordJobStart("job-1"))
	require.NoError(t, s.RecordJobResult("job-1", "completed", map[string]any{"xt": 1.5}, ""))

	jobs, err := s.RecentJobs(10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "completed", jobs[0].Status)
	require.Equal(t, []string{"a.fits", "b.fits"}, jobs[0].Inputs)
	require.NotNil(t, jobs[0].StartedAt)
	require.NotNil(t, jobs[0].CompletedAt)

	meta, err := s.JobMeta("job-1")
	require.NoError(t, err)
	require.Equal(t, 1.5, meta["xt"])
}

func TestNilStoreIsNoop(t *testing.T) {
	var s *Store
	require.NoError(t, s.RecordJobQueued(JobRecord{ID: "x"}))
	require.NoError(t, s.RecordJobStart("x"))
	require.NoError(t, s.RecordJobResult("x", "failed", nil, "boom"))
	require.NoError(t, s.Close())
	if _, err := s.RecentJobs(1); err == nil {
		t.Fatalf("expected error from nil store")
	}
}

func TestImageBlocksOrderAndDelete(t *testing.T) {
	s := newStore(t)
	img := s.Image("/data/a_flt.fits")
	for _, name := range []string{"SCI", "ERR", "DQ"} {
		h := header.New()
		h.Set("EXTNAME", name)
		require.NoError(t, img.AppendBlock(shiftext.Block{Name: name, Header: h}))
	}
	require.NoError(t, img.DeleteBlock(1))
	require.Error(t, img.DeleteBlock(5))

	blocks, err := img.Blocks()
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, "SCI", blocks[0].Name)
	require.Equal(t, "DQ", blocks[1].Name)

	// appends after a delete still land at the end
	require.NoError(t, img.AppendBlock(shiftext.Block{Name: "HDRLET", Header: header.New()}))
	blocks, err = img.Blocks()
	require.NoError(t, err)
	require.Equal(t, "HDRLET", blocks[2].Name)

	other, err := s.Image("/data/b_flt.fits").Blocks()
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestShiftRecordPersists(t *testing.T) {
	s := newStore(t)
	ps := 0.05 / 3600
	ref := wcs.New([2]float64{2048, 1024}, [2]float64{10.5, 41.2}, [2][2]float64{{-ps, 0}, {0, ps}}, 4096, 2048)
	m := shiftext.Manager{}

	img := s.Image("/data/a_flt.fits")
	require.NoError(t, img.AppendBlock(shiftext.Block{Name: "SCI", Header: header.New()}))
	require.NoError(t, m.Write(img, shiftext.Record{ShiftX: 1, ShiftY: 2, Rotation: 0.1, Scale: 1, Frame: ref}))
	require.NoError(t, m.Write(img, shiftext.Record{ShiftX: 3, ShiftY: 4, Rotation: 0.2, Scale: 1, Frame: ref}))

	got, err := m.Read(s.Image("/data/a_flt.fits"))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 3.0, got.ShiftX)
	require.Equal(t, 4.0, got.ShiftY)
	require.Equal(t, 4096, got.Frame.Width)
	require.InDelta(t, 0.05, got.Frame.PScale, 1e-12)

	paths, err := s.ImagePaths(shiftext.ExtName)
	require.NoError(t, err)
	require.Equal(t, []string{"/data/a_flt.fits"}, paths)

	require.NoError(t, m.Remove(img))
	got, err = m.Read(img)
	require.NoError(t, err)
	require.Nil(t, got)
}
