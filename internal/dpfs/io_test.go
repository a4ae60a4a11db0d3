package dpfs

import (
	"testing"

	"github.com/scigolib/disacore/internal/container"
	itesting "github.com/scigolib/disacore/internal/testing"
	"github.com/scigolib/disacore/internal/utils"
	"github.com/stretchr/testify/require"
)

// buildLvl3Fixture lays out a 10-block (4 bytes/block) level-3 region with
// two physical copies back to back at [100,140) and [140,180), each block
// filled with a distinguishable repeated byte so tests can tell which copy
// a read actually came from.
func buildLvl3Fixture(t *testing.T, bits []bool) (*container.Descriptor, *itesting.CountingFile) {
	t.Helper()
	data := make([]byte, 180)
	for i := 0; i < 10; i++ {
		for b := 0; b < 4; b++ {
			data[100+i*4+b] = byte(0x10 + i) // copy 0
			data[140+i*4+b] = byte(0x80 + i) // copy 1
		}
	}

	cache := make([]byte, 4)
	for i, set := range bits {
		utils.SetBitMSB(cache, i, set)
	}

	d := &container.Descriptor{
		DPFS: [3]container.DPFSLevel{
			{}, {},
			{Offset: 100, Size: 40, Log: 2},
		},
	}
	d.SetCache(cache)

	cf := itesting.NewCountingFile(data)
	cf.Region("copy0", 100, 140)
	cf.Region("copy1", 140, 180)
	return d, cf
}

func TestReadLevel3_MergesRunsAcrossCopies(t *testing.T) {
	d, cf := buildLvl3Fixture(t, []bool{false, false, true, true, false})

	out := make([]byte, 20)
	n := ReadLevel3(cf, d, 0, 20, out)
	require.Equal(t, uint64(20), n)

	want := []byte{
		0x10, 0x10, 0x10, 0x10, // block 0, copy 0
		0x11, 0x11, 0x11, 0x11, // block 1, copy 0
		0x82, 0x82, 0x82, 0x82, // block 2, copy 1
		0x83, 0x83, 0x83, 0x83, // block 3, copy 1
		0x14, 0x14, 0x14, 0x14, // block 4, copy 0
	}
	require.Equal(t, want, out)

	require.Equal(t, 2, cf.Calls["copy0"])
	require.Equal(t, 1, cf.Calls["copy1"])
}

func TestReadLevel3_UniformSelectorIsOneRun(t *testing.T) {
	d, cf := buildLvl3Fixture(t, []bool{false, false, false, false, false})

	out := make([]byte, 16)
	n := ReadLevel3(cf, d, 0, 16, out)
	require.Equal(t, uint64(16), n)
	require.Equal(t, 1, cf.Calls["copy0"])
	require.Equal(t, 0, cf.Calls["copy1"])
}

func TestWriteLevel3_RoutesByBlockSelector(t *testing.T) {
	d, cf := buildLvl3Fixture(t, []bool{true, false})

	in := []byte{
		0xEE, 0xEE, 0xEE, 0xEE, // block 0 -> copy 1
		0xFF, 0xFF, 0xFF, 0xFF, // block 1 -> copy 0
	}
	n := WriteLevel3(cf, d, 0, 8, in)
	require.Equal(t, uint64(8), n)

	data := cf.Bytes()
	require.Equal(t, []byte{0xEE, 0xEE, 0xEE, 0xEE}, data[140:144])
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, data[104:108])
}

func TestReadLevel3_ZeroSizeReturnsZero(t *testing.T) {
	d, cf := buildLvl3Fixture(t, []bool{false})
	require.Equal(t, uint64(0), ReadLevel3(cf, d, 0, 0, nil))
}

func TestCountRuns_MatchesActualPhysicalCallCount(t *testing.T) {
	d, cf := buildLvl3Fixture(t, []bool{false, false, true, true, false})
	require.Equal(t, 3, CountRuns(d, 0, 20))

	out := make([]byte, 20)
	ReadLevel3(cf, d, 0, 20, out)
	require.Equal(t, cf.Calls["copy0"]+cf.Calls["copy1"], CountRuns(d, 0, 20))
}

func TestCountRuns_UniformSelectorIsOneRun(t *testing.T) {
	d, _ := buildLvl3Fixture(t, []bool{false, false, false})
	require.Equal(t, 1, CountRuns(d, 0, 12))
}
