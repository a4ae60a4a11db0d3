// Package main provides a command-line utility to dump a DISA/DIFF
// container's parsed descriptor tree. It never touches the level-4
// payload; it only prints the outer header, DIFI, DPFS, and IVFC fields
// that GetRWInfo parses.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/scigolib/disacore"
)

func main() {
	partitionB := flag.Bool("partition-b", false, "request partition B instead of partition A")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: disadump [flags] <container.bin>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		return
	}

	desc, err := disacore.GetRWInfo(args[0], *partitionB)
	if err != nil {
		log.Fatalf("parsing container: %v", err)
	}

	fmt.Printf("table:            offset=0x%x size=0x%x\n", desc.OffsetTable, desc.SizeTable)
	fmt.Printf("difi:             offset=0x%x\n", desc.OffsetDIFI)
	fmt.Printf("partition hash:   offset=0x%x\n", desc.OffsetPartitionHash)
	fmt.Printf("partition:        offset=0x%x size=0x%x\n", desc.OffsetPartition, desc.SizePartition)
	fmt.Printf("master hash:      offset=0x%x (relative to difi)\n", desc.OffsetMasterHash)

	for i, lvl := range desc.DPFS {
		fmt.Printf("dpfs level %d:     offset=0x%x size=0x%x log=%d\n", i+1, lvl.Offset, lvl.Size, lvl.Log)
	}
	fmt.Printf("dpfs lvl1 active copy: %d\n", desc.DPFSLvl1Selector)

	for i, lvl := range desc.IVFC {
		fmt.Printf("ivfc level %d:     offset=0x%x size=0x%x log=%d\n", i+1, lvl.Offset, lvl.Size, lvl.Log)
	}
	if desc.IVFCUseExtLvl4 {
		fmt.Printf("ivfc level 4 is external: raw offset=0x%x absolute=0x%x\n", desc.ExtLvl4Offset, desc.Level4AbsoluteOffset())
	}
}
