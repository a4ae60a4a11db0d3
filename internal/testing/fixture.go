package testing

import "encoding/binary"

// Fixture layout constants for BuildMinimalDISA. A single DISA partition A,
// single active table, with a DPFS region just large enough for two
// 512-byte level-3 granules and an IVFC tree sized to match, laid out as:
//
//	0x100          DISA outer header            (0x100 bytes)
//	0x200          table 0 / DIFI block start
//	0x244          IVFC descriptor
//	0x2BC          DPFS descriptor
//	0x30C          master hash region            (size 0x20)
//	0x400          partition A
//	0x400+0        DPFS level 1, copy 0 (4 bytes)
//	0x400+4        DPFS level 1, copy 1 (4 bytes)
//	0x400+8        DPFS level 2, copy 0 (4 bytes)
//	0x400+12       DPFS level 2, copy 1 (4 bytes)
//	0x400+16       DPFS level 3, copy 0 (1024 bytes)   <- IVFC levels 1-4 live here
//	0x400+1040     DPFS level 3, copy 1 (1024 bytes)
//
// Within the DPFS level-3 logical coordinate space (offset 0 = partition
// offset + 16):
//
//	IVFC level 1: offset 0,   size 32  (one 32-byte block)
//	IVFC level 2: offset 32,  size 32  (one 32-byte block)
//	IVFC level 3: offset 64,  size 512 (one 512-byte block)
//	IVFC level 4: offset 576, size 256 (sixteen 16-byte blocks)
const (
	FixtureOuterHeaderOffset = 0x100
	FixtureTableOffset       = 0x200
	FixtureSizeTable         = 0x130
	FixtureDifiOffset        = FixtureTableOffset
	FixtureIvfcDescOffset    = FixtureDifiOffset + 0x44
	FixtureDpfsDescOffset    = FixtureIvfcDescOffset + 0x78
	FixtureMasterHashOffset  = 0x10C // relative to FixtureDifiOffset
	FixturePartitionHashAbs  = 0x16C // DISA absolute offset
	FixtureDiffHashAbs       = 0x134 // DIFF absolute offset

	FixturePartitionOffset = 0x400
	FixturePartitionSize   = 2064

	FixtureDPFSLvl1Size = 4
	FixtureDPFSLvl2Size = 4
	FixtureDPFSLvl3Size = 1024
	FixtureDPFSLogLvl2  = 3
	FixtureDPFSLogLvl3  = 9

	FixtureIVFCLvl1Offset = 0
	FixtureIVFCLvl1Size   = 32
	FixtureIVFCLogLvl1    = 5
	FixtureIVFCLvl2Offset = 32
	FixtureIVFCLvl2Size   = 32
	FixtureIVFCLogLvl2    = 5
	FixtureIVFCLvl3Offset = 64
	FixtureIVFCLvl3Size   = 512
	FixtureIVFCLogLvl3    = 9
	FixtureIVFCLvl4Offset = 576
	FixtureIVFCLvl4Size   = 256
	FixtureIVFCLogLvl4    = 4

	FixtureFileSize = 8192
)

// BuildMinimalDISA constructs a byte-exact, minimal valid DISA container per
// the layout above. selector picks the active DPFS level-1 copy;
// useExtLvl4 switches level 4 to the external-to-DPFS placement: the
// partition grows by the level-4 size and level 4 lives at partition
// offset FixturePartitionSize, right after the DPFS region, since an
// external level 4 must still end within the partition.
func BuildMinimalDISA(selector uint8, useExtLvl4 bool) []byte {
	data := make([]byte, FixtureFileSize)
	le := binary.LittleEndian

	sizePartition := uint64(FixturePartitionSize)
	if useExtLvl4 {
		sizePartition += FixtureIVFCLvl4Size
	}

	// Outer DISA header.
	h := data[FixtureOuterHeaderOffset : FixtureOuterHeaderOffset+0x100]
	copy(h[0:8], "DISA\x00\x00\x04\x00")
	le.PutUint32(h[8:12], 1) // n_partitions
	le.PutUint64(h[16:24], FixtureTableOffset) // offset_table1 (unused, active=0)
	le.PutUint64(h[24:32], FixtureTableOffset) // offset_table0
	le.PutUint64(h[32:40], FixtureSizeTable)
	le.PutUint64(h[40:48], 0) // offset_descA
	le.PutUint64(h[48:56], FixtureSizeTable)
	le.PutUint64(h[72:80], FixturePartitionOffset)
	le.PutUint64(h[80:88], sizePartition)
	h[104] = 0 // active_table

	buildPartitionDescriptors(data, selector, useExtLvl4)

	return data
}

// BuildMinimalDIFF constructs a minimal valid DIFF container sharing
// BuildMinimalDISA's table/partition layout; only the outer header differs
// (DIFF magic, single partition, hash at 0x134).
func BuildMinimalDIFF(selector uint8) []byte {
	data := make([]byte, FixtureFileSize)
	le := binary.LittleEndian

	h := data[FixtureOuterHeaderOffset : FixtureOuterHeaderOffset+0x100]
	copy(h[0:8], "DIFF\x00\x00\x03\x00")
	le.PutUint64(h[8:16], FixtureTableOffset) // offset_table1 (unused, active=0)
	le.PutUint64(h[16:24], FixtureTableOffset)
	le.PutUint64(h[24:32], FixtureSizeTable)
	le.PutUint64(h[32:40], FixturePartitionOffset)
	le.PutUint64(h[40:48], FixturePartitionSize)
	le.PutUint32(h[48:52], 0) // active_table

	buildPartitionDescriptors(data, selector, false)

	return data
}

func buildPartitionDescriptors(data []byte, selector uint8, useExtLvl4 bool) {
	le := binary.LittleEndian

	// DIFI header.
	difi := data[FixtureDifiOffset : FixtureDifiOffset+0x44]
	copy(difi[0:8], "DIFI\x00\x00\x01\x00")
	le.PutUint64(difi[8:16], 0x44)
	le.PutUint64(difi[16:24], 0x78)
	le.PutUint64(difi[24:32], 0xBC)
	le.PutUint64(difi[32:40], 0x50)
	le.PutUint64(difi[40:48], 0x10C)
	le.PutUint64(difi[48:56], 0x20)
	if useExtLvl4 {
		difi[56] = 1
	}
	difi[57] = selector
	if useExtLvl4 {
		le.PutUint64(difi[60:68], FixturePartitionSize) // ivfc_offset_extlvl4, right after the DPFS region
	}

	// IVFC descriptor.
	ivfc := data[FixtureIvfcDescOffset : FixtureIvfcDescOffset+0x78]
	copy(ivfc[0:8], "IVFC\x00\x00\x02\x00")
	le.PutUint64(ivfc[8:16], 0x20) // size_hash
	le.PutUint64(ivfc[16:24], FixtureIVFCLvl1Offset)
	le.PutUint64(ivfc[24:32], FixtureIVFCLvl1Size)
	le.PutUint32(ivfc[32:36], FixtureIVFCLogLvl1)
	le.PutUint64(ivfc[40:48], FixtureIVFCLvl2Offset)
	le.PutUint64(ivfc[48:56], FixtureIVFCLvl2Size)
	le.PutUint32(ivfc[56:60], FixtureIVFCLogLvl2)
	le.PutUint64(ivfc[64:72], FixtureIVFCLvl3Offset)
	le.PutUint64(ivfc[72:80], FixtureIVFCLvl3Size)
	le.PutUint32(ivfc[80:84], FixtureIVFCLogLvl3)
	if useExtLvl4 {
		le.PutUint64(ivfc[88:96], 0)
		le.PutUint64(ivfc[96:104], FixtureIVFCLvl4Size)
	} else {
		le.PutUint64(ivfc[88:96], FixtureIVFCLvl4Offset)
		le.PutUint64(ivfc[96:104], FixtureIVFCLvl4Size)
	}
	le.PutUint64(ivfc[104:112], FixtureIVFCLogLvl4)
	le.PutUint64(ivfc[112:120], 0x78)

	// DPFS descriptor.
	dpfs := data[FixtureDpfsDescOffset : FixtureDpfsDescOffset+0x50]
	copy(dpfs[0:8], "DPFS\x00\x00\x01\x00")
	le.PutUint64(dpfs[8:16], 0)
	le.PutUint64(dpfs[16:24], FixtureDPFSLvl1Size)
	le.PutUint64(dpfs[32:40], FixtureDPFSLvl1Size*2)
	le.PutUint64(dpfs[40:48], FixtureDPFSLvl2Size)
	le.PutUint32(dpfs[48:52], FixtureDPFSLogLvl2)
	le.PutUint64(dpfs[56:64], FixtureDPFSLvl1Size*2+FixtureDPFSLvl2Size*2)
	le.PutUint64(dpfs[64:72], FixtureDPFSLvl3Size)
	le.PutUint32(dpfs[72:76], FixtureDPFSLogLvl3)
}
