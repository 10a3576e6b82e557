package fsimg

import (
	"bytes"
	"testing"

	"envkernel/internal/defs"
)

func TestOpenUnknownNameFails(t *testing.T) {
	if _, err := Open("no-such-image"); err == nil {
		t.Fatalf("want error opening an unregistered image")
	}
}

func TestReadAdvancesCursor(t *testing.T) {
	Register("prog-a", []byte("hello world"))
	f, err := Open("prog-a")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 5)
	n, rerr := f.Read(buf)
	if rerr != nil || n != 5 {
		t.Fatalf("Read: n=%d err=%v", n, rerr)
	}
	if string(buf) != "hello" {
		t.Fatalf("want %q, got %q", "hello", buf)
	}
	n2, _ := f.Read(buf)
	if string(buf[:n2]) != " worl" {
		t.Fatalf("want cursor advanced, got %q", buf[:n2])
	}
}

func TestReadnDoesNotDisturbCursor(t *testing.T) {
	Register("prog-b", []byte("0123456789"))
	f, _ := Open("prog-b")
	defer f.Close()

	chunk, err := f.Readn(2, 3)
	if err != nil || !bytes.Equal(chunk, []byte("234")) {
		t.Fatalf("Readn: %v %q", err, chunk)
	}
	buf := make([]byte, 4)
	f.Read(buf)
	if string(buf) != "0123" {
		t.Fatalf("want Readn to leave the cursor untouched, got %q", buf)
	}
}

func TestReadMapRequiresPageAlignment(t *testing.T) {
	data := make([]byte, defs.PGSIZE*2)
	Register("prog-c", data)
	f, _ := Open("prog-c")
	defer f.Close()

	if _, ok := f.ReadMap(1); ok {
		t.Fatalf("want ReadMap to reject an unaligned offset")
	}
	if _, ok := f.ReadMap(defs.PGSIZE * 2); ok {
		t.Fatalf("want ReadMap to reject an offset past the image")
	}
	chunk, ok := f.ReadMap(defs.PGSIZE)
	if !ok || len(chunk) != defs.PGSIZE {
		t.Fatalf("want a full page back, got ok=%v len=%d", ok, len(chunk))
	}
}

func TestSizeAndBytes(t *testing.T) {
	Register("prog-d", []byte("abc"))
	f, _ := Open("prog-d")
	defer f.Close()
	if f.Size() != 3 {
		t.Fatalf("want Size 3, got %d", f.Size())
	}
	if string(f.Bytes()) != "abc" {
		t.Fatalf("want Bytes to return the full image")
	}
}
