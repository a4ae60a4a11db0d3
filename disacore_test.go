package disacore

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	ftest "github.com/scigolib/disacore/internal/testing"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, selector uint8, useExtLvl4 bool) string {
	t.Helper()
	data := ftest.BuildMinimalDISA(selector, useExtLvl4)
	path := filepath.Join(t.TempDir(), "container.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestGetRWInfo_MatchesFixtureLayout(t *testing.T) {
	path := writeFixture(t, 0, false)

	desc, err := GetRWInfo(path, false)
	require.NoError(t, err)
	require.Equal(t, uint64(ftest.FixtureIVFCLvl4Size), desc.IVFC[3].Size)
}

func TestSession_WriteThenReadBackRoundTrips(t *testing.T) {
	path := writeFixture(t, 0, false)

	s, err := OpenSession(path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	payload := []byte("0123456789ABCDEFG") // 17 bytes, crosses one 16-byte level-4 block
	n, err := s.WriteLevel4AndFix(5, len(payload), payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = s.ReadLevel4(5, len(payload), out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestSession_WriteLevel4AndFix_HashChainClosure(t *testing.T) {
	path := writeFixture(t, 0, false)

	s, err := OpenSession(path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	payload := []byte("0123456789ABCDEFG")
	_, err = s.WriteLevel4AndFix(5, len(payload), payload)
	require.NoError(t, err)

	// The fixture starts with zeroed hash regions, so the write above only
	// fixed the blocks it touched. Sweep the whole level-4 range once so
	// every hash slot is covered by the closure assertions below.
	require.NoError(t, s.FixChain(0, int(s.Descriptor().IVFC[3].Size)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	desc := s.Descriptor()

	// Every level-4 block's SHA-256 must match its slot at level 3.
	lvl4Base := int(desc.DPFSLvl3CopyOffset(0)) + int(desc.IVFC[3].Offset)
	lvl3Base := int(desc.DPFSLvl3CopyOffset(0)) + int(desc.IVFC[2].Offset)
	blockSize := 1 << desc.IVFC[3].Log
	numBlocks := int(desc.IVFC[3].Size) / blockSize
	for i := 0; i < numBlocks; i++ {
		block := raw[lvl4Base+i*blockSize : lvl4Base+(i+1)*blockSize]
		sum := sha256.Sum256(block)
		require.Equal(t, sum[:], raw[lvl3Base+i*32:lvl3Base+i*32+32], "level-3 hash slot %d", i)
	}

	// Level 3's own region must match level 2's single hash slot.
	lvl2Base := int(desc.DPFSLvl3CopyOffset(0)) + int(desc.IVFC[1].Offset)
	lvl3Region := raw[lvl3Base : lvl3Base+int(desc.IVFC[2].Size)]
	lvl3Sum := sha256.Sum256(lvl3Region)
	require.Equal(t, lvl3Sum[:], raw[lvl2Base:lvl2Base+32])

	// Level 2's own region must match level 1's single hash slot.
	lvl1Base := int(desc.DPFSLvl3CopyOffset(0)) + int(desc.IVFC[0].Offset)
	lvl2Region := raw[lvl2Base : lvl2Base+int(desc.IVFC[1].Size)]
	lvl2Sum := sha256.Sum256(lvl2Region)
	require.Equal(t, lvl2Sum[:], raw[lvl1Base:lvl1Base+32])

	// Level 1's own region must match the DIFI master hash.
	masterHashBase := int(desc.OffsetDIFI) + int(desc.OffsetMasterHash)
	lvl1Region := raw[lvl1Base : lvl1Base+int(desc.IVFC[0].Size)]
	lvl1Sum := sha256.Sum256(lvl1Region)
	require.Equal(t, lvl1Sum[:], raw[masterHashBase:masterHashBase+32])

	// The active descriptor table's hash must match the outer partition hash.
	tableRegion := raw[desc.OffsetTable : desc.OffsetTable+desc.SizeTable]
	tableSum := sha256.Sum256(tableRegion)
	require.Equal(t, tableSum[:], raw[desc.OffsetPartitionHash:desc.OffsetPartitionHash+32])
}

func TestSession_FixChain_IsIdempotent(t *testing.T) {
	path := writeFixture(t, 0, false)

	s, err := OpenSession(path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	payload := []byte("hello, world!!!!")
	_, err = s.WriteLevel4AndFix(0, len(payload), payload)
	require.NoError(t, err)

	lvlSize := int(s.Descriptor().IVFC[3].Size)
	require.NoError(t, s.FixChain(0, lvlSize))

	after1, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, s.FixChain(0, lvlSize))
	require.NoError(t, s.FixPartitionHash())

	after2, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, after1, after2)
}

func TestSession_ExternalLevel4_WriteThenReadBackRoundTrips(t *testing.T) {
	path := writeFixture(t, 0, true)

	s, err := OpenSession(path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.True(t, s.Descriptor().IVFCUseExtLvl4)

	payload := []byte("external payload!")
	n, err := s.WriteLevel4AndFix(3, len(payload), payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = s.ReadLevel4(3, len(payload), out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)

	// External level 4 bytes must land at the absolute file offset, not
	// inside the DPFS-managed region.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	abs := s.Descriptor().Level4AbsoluteOffset()
	require.Equal(t, payload, raw[abs+3:abs+3+uint64(len(payload))])
}

func TestSession_ReadLevel4_ClampsPastDeclaredSize(t *testing.T) {
	path := writeFixture(t, 0, false)

	s, err := OpenSession(path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	lvlSize := int(s.Descriptor().IVFC[3].Size)

	out := make([]byte, 64)
	n, err := s.ReadLevel4(int64(lvlSize-10), 64, out)
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestSession_ReadLevel4_FullyPastDeclaredSizeReturnsZeroNoError(t *testing.T) {
	path := writeFixture(t, 0, false)

	s, err := OpenSession(path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	lvlSize := int(s.Descriptor().IVFC[3].Size)

	out := make([]byte, 16)
	n, err := s.ReadLevel4(int64(lvlSize+100), 16, out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSession_WriteLevel4_RejectsPastDeclaredSize(t *testing.T) {
	path := writeFixture(t, 0, false)

	s, err := OpenSession(path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	lvlSize := int(s.Descriptor().IVFC[3].Size)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	payload := make([]byte, 64)
	n, err := s.WriteLevel4AndFix(int64(lvlSize-10), len(payload), payload)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrLevel4OutOfRange)
	require.Equal(t, 0, n)

	// A rejected write must not touch the file at all.
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestWriteLevel4Failure_LeavesPartitionHashUnchanged(t *testing.T) {
	path := writeFixture(t, 0, false)

	desc, err := GetRWInfo(path, false)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	beforeHash := append([]byte(nil), before[desc.OffsetPartitionHash:desc.OffsetPartitionHash+32]...)

	lvlSize := int(desc.IVFC[3].Size)
	n, err := WriteIVFCLevel4(path, desc, int64(lvlSize-4), 64, make([]byte, 64))
	require.Error(t, err)
	require.Equal(t, 0, n)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, beforeHash, after[desc.OffsetPartitionHash:desc.OffsetPartitionHash+32])
}

func TestPackageLevelReadWriteLevel4_RoundTrips(t *testing.T) {
	path := writeFixture(t, 0, false)

	payload := []byte("xyzzy")
	n, err := WriteLevel4(path, 2, len(payload), payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = ReadLevel4(path, 2, len(payload), out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestBuildDPFSLevel2Cache_PopulatesDescriptorCache(t *testing.T) {
	path := writeFixture(t, 0, false)

	desc, err := GetRWInfo(path, false)
	require.NoError(t, err)
	require.Nil(t, desc.Cache())

	buf := make([]byte, 16)
	require.NoError(t, BuildDPFSLevel2Cache(path, desc, buf))
	require.NotNil(t, desc.Cache())
}

func TestFixPartitionHash_RewritesOnlyThePartitionHash(t *testing.T) {
	path := writeFixture(t, 0, false)

	desc, err := GetRWInfo(path, false)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, FixPartitionHash(path, desc))

	after, err := os.ReadFile(path)
	require.NoError(t, err)

	tableRegion := after[desc.OffsetTable : desc.OffsetTable+desc.SizeTable]
	sum := sha256.Sum256(tableRegion)
	require.Equal(t, sum[:], after[desc.OffsetPartitionHash:desc.OffsetPartitionHash+32])

	// Nothing outside the 32-byte hash slot should have changed.
	before[desc.OffsetPartitionHash] = after[desc.OffsetPartitionHash]
	copy(before[desc.OffsetPartitionHash:desc.OffsetPartitionHash+32], after[desc.OffsetPartitionHash:desc.OffsetPartitionHash+32])
	require.Equal(t, before, after)
}
