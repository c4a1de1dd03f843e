package ring

import "testing"

func TestBuffer_WriteUnderCapacity(t *testing.T) {
	b := New(16)
	b.Write([]byte("hello"))
	if string(b.Bytes()) != "hello" {
		t.Fatalf("got %q", b.Bytes())
	}
	if b.Truncated() {
		t.Fatal("should not be truncated")
	}
}

func TestBuffer_OverflowDropsOldestKeepsNewest(t *testing.T) {
	b := New(5)
	b.Write([]byte("abcde"))
	b.Write([]byte("fgh")) // overflow: should drop "abc", keep "defgh"
	if got := string(b.Bytes()); got != "defgh" {
		t.Fatalf("got %q, want %q", got, "defgh")
	}
	if !b.Truncated() {
		t.Fatal("should be truncated")
	}
}

func TestBuffer_Tail(t *testing.T) {
	b := New(16)
	b.Write([]byte("0123456789"))
	if got := string(b.Tail(3)); got != "789" {
		t.Fatalf("got %q", got)
	}
	if got := string(b.Tail(100)); got != "0123456789" {
		t.Fatalf("got %q", got)
	}
}

func TestBuffer_SingleWriteLargerThanCapacity(t *testing.T) {
	b := New(4)
	b.Write([]byte("abcdefgh"))
	if got := string(b.Bytes()); got != "efgh" {
		t.Fatalf("got %q, want %q", got, "efgh")
	}
	if !b.Truncated() {
		t.Fatal("should be truncated")
	}
}

func TestBuffer_TotalWrittenTracksAllBytesIncludingEvicted(t *testing.T) {
	b := New(4)
	b.Write([]byte("ab"))
	b.Write([]byte("cd"))
	b.Write([]byte("ef"))
	if b.TotalWritten() != 6 {
		t.Fatalf("got %d, want 6", b.TotalWritten())
	}
}

func TestBuffer_MultipleSmallWritesWrapCorrectly(t *testing.T) {
	b := New(6)
	for _, chunk := range []string{"ab", "cd", "ef", "gh"} {
		b.Write([]byte(chunk))
	}
	// capacity 6, total written "abcdefgh" (8 bytes): last 6 = "cdefgh"
	if got := string(b.Bytes()); got != "cdefgh" {
		t.Fatalf("got %q, want %q", got, "cdefgh")
	}
}
