package ota

import (
	"bytes"
	"testing"
)

func TestBlockRequestRoundTrip(t *testing.T) {
	r := BlockRequest{Type: 1, Version: 2, Block: 0x0102}
	wire := r.Marshal()
	if want := []byte{1, 0, 2, 0, 0x02, 0x01}; !bytes.Equal(wire, want) {
		t.Errorf("Marshal = % x, want % x", wire, want)
	}

	got, ok := UnmarshalBlockRequest(wire)
	if !ok || got != r {
		t.Errorf("Unmarshal = %+v ok=%v, want %+v", got, ok, r)
	}

	if _, ok := UnmarshalBlockRequest(wire[:3]); ok {
		t.Error("Unmarshal accepted a short payload")
	}
}

func TestBlockResponseRoundTrip(t *testing.T) {
	block := bytes.Repeat([]byte{0x5A}, BlockSize)
	r := BlockRequest{Type: 1, Version: 1, Block: 2}

	payload := BuildBlockResponse(r, block)
	if len(payload) != BlockRequestSize+BlockSize {
		t.Fatalf("payload len = %d, want %d", len(payload), BlockRequestSize+BlockSize)
	}

	gotReq, gotData, ok := ParseBlockResponse(payload)
	if !ok || gotReq != r || !bytes.Equal(gotData, block) {
		t.Errorf("ParseBlockResponse = %+v % x ok=%v", gotReq, gotData, ok)
	}

	if _, _, ok := ParseBlockResponse(payload[:10]); ok {
		t.Error("ParseBlockResponse accepted a short payload")
	}
}
