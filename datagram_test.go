package junction

import (
	"bytes"
	"net"
	"testing"
)

func TestDatagramArrayLayout(t *testing.T) {
	arr := NewDatagramArray(4, 512)

	if arr.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", arr.Len())
	}
	if len(arr.Bytes()) != 4*512 {
		t.Fatalf("backing buffer = %d bytes, want %d", len(arr.Bytes()), 4*512)
	}
	for i := 0; i < 4; i++ {
		if len(arr.Slot(i)) != 512 {
			t.Errorf("Slot(%d) = %d bytes, want 512", i, len(arr.Slot(i)))
		}
	}
}

func TestDatagramArraySliceAliasesBacking(t *testing.T) {
	arr := NewDatagramArray(4, 64)
	copy(arr.Slot(2), []byte("shared"))

	view := arr.Slice(2, 4)
	if view.Len() != 2 {
		t.Fatalf("sliced Len() = %d, want 2", view.Len())
	}
	if !bytes.HasPrefix(view.Slot(0), []byte("shared")) {
		t.Fatal("slice should see the original's slot bytes")
	}

	// Writes through the view land in the original's backing memory.
	copy(view.Slot(1), []byte("back"))
	if !bytes.HasPrefix(arr.Slot(3), []byte("back")) {
		t.Error("write through slice should alias the original buffer")
	}
}

func TestDatagramArrayEndpointPerSlot(t *testing.T) {
	arr := NewDatagramArray(2, 64)
	e := Endpoint{Family: FamilyIP4, IP: net.ParseIP("127.0.0.1"), Port: 9999}

	arr.SetEndpoint(0, e)
	if got := arr.Endpoint(0).String(); got != e.String() {
		t.Errorf("Endpoint(0) = %q, want %q", got, e.String())
	}
	if arr.Endpoint(1).String() == e.String() {
		t.Error("slot 1 endpoint must be independent of slot 0")
	}
}

func TestDatagramArrayLenBoundsSlot(t *testing.T) {
	arr := NewDatagramArray(1, 128)
	arr.SetLen(0, 5)
	if len(arr.Slot(0)) != 5 {
		t.Errorf("Slot(0) after SetLen = %d bytes, want 5", len(arr.Slot(0)))
	}
}
