package checkpoint

import (
	"testing"
	"time"
)

func TestCreateAndVerifyValid(t *testing.T) {
	v := NewVerifier(nil)
	snap := map[string]any{"body": "draft-1", "seq": 1}

	cp, err := v.Create("t1", snap, time.Minute, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cp.MerkleRoot == ([32]byte{}) {
		t.Fatal("expected non-zero merkle root")
	}

	if got := v.Verify("t1", snap); got != VALID {
		t.Fatalf("expected VALID, got %s", got)
	}
}

func TestVerifyNotFound(t *testing.T) {
	v := NewVerifier(nil)
	if got := v.Verify("missing", nil); got != NOT_FOUND {
		t.Fatalf("expected NOT_FOUND, got %s", got)
	}
}

func TestVerifyHashMismatch(t *testing.T) {
	v := NewVerifier(nil)
	snap := map[string]any{"body": "draft-1"}
	if _, err := v.Create("t1", snap, time.Minute, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	tampered := map[string]any{"body": "draft-1-tampered"}
	if got := v.Verify("t1", tampered); got != HASH_MISMATCH {
		t.Fatalf("expected HASH_MISMATCH, got %s", got)
	}
}

func TestVerifyExpired(t *testing.T) {
	v := NewVerifier(nil)
	snap := map[string]any{"body": "draft-1"}
	if _, err := v.Create("t1", snap, 10*time.Millisecond, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if got := v.Verify("t1", snap); got != EXPIRED {
		t.Fatalf("expected EXPIRED, got %s", got)
	}
}

func TestGCExpiredIsIdempotent(t *testing.T) {
	v := NewVerifier(nil)
	if _, err := v.Create("t1", "x", 10*time.Millisecond, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if n := v.GCExpired(); n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if n := v.GCExpired(); n != 0 {
		t.Fatalf("expected second GC to be a no-op, got %d", n)
	}
}

func TestChainWalksPredecessors(t *testing.T) {
	v := NewVerifier(nil)
	if _, err := v.Create("t1", "snap-1", time.Minute, nil); err != nil {
		t.Fatalf("create t1: %v", err)
	}
	pred := "t1"
	if _, err := v.Create("t2", "snap-2", time.Minute, &pred); err != nil {
		t.Fatalf("create t2: %v", err)
	}
	pred2 := "t2"
	if _, err := v.Create("t3", "snap-3", time.Minute, &pred2); err != nil {
		t.Fatalf("create t3: %v", err)
	}

	chain := v.Chain("t3")
	if len(chain) != 3 {
		t.Fatalf("expected chain of 3, got %d", len(chain))
	}
	if chain[0].ID != "t3" || chain[1].ID != "t2" || chain[2].ID != "t1" {
		t.Fatalf("unexpected chain order: %v", []string{chain[0].ID, chain[1].ID, chain[2].ID})
	}
}

func TestVerifyLeafAndProof(t *testing.T) {
	v := NewVerifier(nil)
	items := []any{"a", "b", "c", "d", "e"}
	if _, err := v.Create("t1", items, time.Minute, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	proof, err := v.Proof("t1", 2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if !v.VerifyLeaf("t1", 2, "c", proof) {
		t.Fatal("expected leaf 2 to verify")
	}
	if v.VerifyLeaf("t1", 2, "tampered", proof) {
		t.Fatal("expected tampered leaf to fail verification")
	}
}
