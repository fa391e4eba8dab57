package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func tickSchema(t *testing.T) *Schema {
	t.Helper()
	s := New(1, "tick")
	if err := s.AddField("price", F64, 0); err != nil {
		t.Fatalf("AddField price: %v", err)
	}
	if err := s.AddField("qty", U64, 0); err != nil {
		t.Fatalf("AddField qty: %v", err)
	}
	if err := s.AddField("symbol", String, 8); err != nil {
		t.Fatalf("AddField symbol: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return s
}

func TestFieldOffsetsPackSequentially(t *testing.T) {
	s := tickSchema(t)
	fields := s.Fields()
	want := []Field{
		{Name: "price", Type: F64, Offset: 0, Size: 8},
		{Name: "qty", Type: U64, Offset: 8, Size: 8},
		{Name: "symbol", Type: String, Offset: 16, Size: 8},
	}
	if diff := cmp.Diff(want, fields, cmpopts.IgnoreFields(Field{}, "Fingerprint")); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if s.TotalSize() != 24 {
		t.Fatalf("total size = %d, want 24", s.TotalSize())
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := tickSchema(t)
	msg, err := NewMessage(s, 0)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := msg.SetF64("price", 123.5); err != nil {
		t.Fatalf("SetF64: %v", err)
	}
	if err := msg.SetU64("qty", 7); err != nil {
		t.Fatalf("SetU64: %v", err)
	}
	if err := msg.SetString("symbol", "BTCUSD"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	price, err := msg.GetF64("price")
	if err != nil || price != 123.5 {
		t.Fatalf("GetF64 = %v, %v", price, err)
	}
	qty, err := msg.GetU64("qty")
	if err != nil || qty != 7 {
		t.Fatalf("GetU64 = %v, %v", qty, err)
	}
	sym, err := msg.GetString("symbol")
	if err != nil || sym != "BTCUSD" {
		t.Fatalf("GetString = %q, %v", sym, err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := tickSchema(t)
	msg, _ := NewMessage(s, 0)
	_ = msg.SetF64("price", 99.25)
	_ = msg.SetU64("qty", 42)
	_ = msg.SetString("symbol", "ETH")

	buf := make([]byte, s.TotalSize())
	n, err := msg.Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != int(s.TotalSize()) {
		t.Fatalf("Encode n = %d, want %d", n, s.TotalSize())
	}

	other, _ := NewMessage(s, 0)
	if err := other.Decode(buf); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	price, _ := other.GetF64("price")
	if price != 99.25 {
		t.Fatalf("decoded price = %v", price)
	}
}

func TestEncodeBufferTooSmall(t *testing.T) {
	s := tickSchema(t)
	msg, _ := NewMessage(s, 0)
	if _, err := msg.Encode(make([]byte, 2)); err == nil {
		t.Fatal("expected error for undersized encode buffer")
	}
}

func TestAddFieldAfterFinalizeRejected(t *testing.T) {
	s := tickSchema(t)
	if err := s.AddField("late", U32, 0); err == nil {
		t.Fatal("expected error adding a field after Finalize")
	}
}

func TestDuplicateFieldNameRejected(t *testing.T) {
	s := New(2, "dup")
	if err := s.AddField("x", U32, 0); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if err := s.AddField("x", U32, 0); err == nil {
		t.Fatal("expected error for duplicate field name")
	}
}

func TestUnknownFieldLookupFails(t *testing.T) {
	s := tickSchema(t)
	msg, _ := NewMessage(s, 0)
	if _, err := msg.GetF64("nope"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestU32AndF32RoundTrip(t *testing.T) {
	s := New(3, "quote")
	if err := s.AddField("crc", U32, 0); err != nil {
		t.Fatalf("AddField crc: %v", err)
	}
	if err := s.AddField("spread", F32, 0); err != nil {
		t.Fatalf("AddField spread: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if s.TotalSize() != 8 {
		t.Fatalf("total size = %d, want 8", s.TotalSize())
	}

	msg, err := NewMessage(s, 0)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := msg.SetU32("crc", 0xdeadbeef); err != nil {
		t.Fatalf("SetU32: %v", err)
	}
	if err := msg.SetF32("spread", 0.25); err != nil {
		t.Fatalf("SetF32: %v", err)
	}

	crc, err := msg.GetU32("crc")
	if err != nil || crc != 0xdeadbeef {
		t.Fatalf("GetU32 = %v, %v", crc, err)
	}
	spread, err := msg.GetF32("spread")
	if err != nil || spread != 0.25 {
		t.Fatalf("GetF32 = %v, %v", spread, err)
	}
}

func TestFingerprintStableAcrossIdenticalSchemas(t *testing.T) {
	a := tickSchema(t)
	b := tickSchema(t)
	if a.Fingerprint != b.Fingerprint {
		t.Fatalf("fingerprints differ: %d vs %d", a.Fingerprint, b.Fingerprint)
	}
}
