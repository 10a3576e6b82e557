// Command elfentry patches the entry point of a 32-bit little-endian
// ELF program image so it can be registered as a spawn-able image
// below UTOP -- the same "fix the entry point before the loader sees
// it" step a teaching kernel's build process needs when the linker's
// default entry doesn't land in user space.
package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"

	"envkernel/internal/defs"
)

// e32EntryOff is the byte offset of e_entry within an Elf32_Ehdr.
const e32EntryOff = 24

func usage(me string) {
	fmt.Printf("%s <filename> <addr>\n\nChange the ELF entry point of <filename> to <addr>\n", me)
	os.Exit(1)
}

// chkELF validates that ef describes the kind of image package spawn
// will actually load: 32-bit, little-endian, executable. elf.NewFile
// has already checked the magic bytes by the time ef exists.
func chkELF(ef *elf.File) {
	if ef.Class != elf.ELFCLASS32 {
		log.Fatal("spawn only loads 32-bit images")
	}
	if ef.Data != elf.ELFDATA2LSB {
		log.Fatal("spawn only loads little-endian images")
	}
	if ef.Type != elf.ET_EXEC {
		log.Fatal("not an executable elf")
	}
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	fn := os.Args[1]
	addr, err := parseAddr(os.Args[2])
	if err != nil {
		log.Fatal(err)
	}
	if int(addr) >= defs.UTOP {
		log.Fatal("entry point must be below UTOP")
	}

	data, err := os.ReadFile(fn)
	if err != nil {
		log.Fatal(err)
	}

	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		log.Fatal(err)
	}
	chkELF(ef)

	fmt.Printf("using address 0x%x\n", addr)
	binary.LittleEndian.PutUint32(data[e32EntryOff:], uint32(addr))

	if err := os.WriteFile(fn, data, 0); err != nil {
		log.Fatal(err)
	}
}

// parseAddr accepts decimal or 0x-prefixed hexadecimal, like C's
// strtoul with base 0.
func parseAddr(s string) (uint64, error) {
	a, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return a, nil
}
