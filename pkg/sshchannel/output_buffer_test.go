package sshchannel

import (
	"fmt"
	"reflect"
	"testing"
)

func TestOutputBufferRecentChronological(t *testing.T) {
	b := NewOutputBuffer()
	b.Add("one")
	b.Add("two")
	b.Add("three")

	got := b.Recent(2)
	want := []string{"two", "three"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestOutputBufferRecentMoreThanAvailable(t *testing.T) {
	b := NewOutputBuffer()
	b.Add("only")

	got := b.Recent(10)
	want := []string{"only"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestOutputBufferBoundedByCount(t *testing.T) {
	b := NewOutputBuffer()
	for i := 0; i < maxEntries+25; i++ {
		b.Add(fmt.Sprintf("frag-%d", i))
	}

	all := b.Recent(maxEntries + 25)
	if len(all) != maxEntries {
		t.Fatalf("expected buffer bounded to %d entries, got %d", maxEntries, len(all))
	}
	if all[0] != "frag-25" {
		t.Fatalf("expected oldest surviving fragment to be frag-25, got %s", all[0])
	}
	if all[len(all)-1] != fmt.Sprintf("frag-%d", maxEntries+24) {
		t.Fatalf("expected newest fragment to be the last added, got %s", all[len(all)-1])
	}
}

func TestOutputBufferRecentZeroOrNegative(t *testing.T) {
	b := NewOutputBuffer()
	b.Add("x")

	if got := b.Recent(0); got != nil {
		t.Fatalf("expected nil for n=0, got %v", got)
	}
	if got := b.Recent(-1); got != nil {
		t.Fatalf("expected nil for negative n, got %v", got)
	}
}
