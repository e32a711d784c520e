package core

import (
	"fmt"
	"testing"
)

func TestNonceSetConsumesExactlyOnce(t *testing.T) {
	n := NewNonceSet()
	n.Add("n1")

	if !n.Consume("n1") {
		t.Fatalf("first match should consume the nonce")
	}
	if n.Len() != 0 {
		t.Fatalf("consumed nonce still pending: %d", n.Len())
	}
	if !n.Consume("n1") {
		t.Fatalf("duplicate delivery of a consumed echo should stay suppressed")
	}
}

func TestNonceSetUnknownNonce(t *testing.T) {
	n := NewNonceSet()
	if n.Consume("ghost") {
		t.Fatalf("unknown nonce matched")
	}
}

func TestNonceSetCapEvictsOldest(t *testing.T) {
	n := NewNonceSet()
	for i := 0; i < nonceCap+1; i++ {
		n.Add(fmt.Sprintf("n%d", i))
	}

	if n.Len() != nonceCap {
		t.Fatalf("cap not enforced: %d", n.Len())
	}
	if n.Consume("n0") {
		t.Fatalf("oldest nonce should have been evicted")
	}
	if !n.Consume(fmt.Sprintf("n%d", nonceCap)) {
		t.Fatalf("newest nonce missing")
	}
}

func TestNonceSetAddIsIdempotent(t *testing.T) {
	n := NewNonceSet()
	n.Add("n1")
	n.Add("n1")
	if n.Len() != 1 {
		t.Fatalf("duplicate add grew the set: %d", n.Len())
	}
}
