package netflow

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-logr/logr"
)

func buildV5Datagram(t *testing.T, recordCount int) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := v5Header{
		Version:    5,
		FlowCount:  uint16(recordCount),
		UptimeMs:   12345,
		UnixSec:    1700000000,
		UnixNsec:   0,
		FlowSeqNum: 1,
		Engine:     0x0102, // engine_type=1, engine_id=2
		Sampling:   0x4001, // algorithm=1, interval=1
	}
	if err := binary.Write(&buf, binary.BigEndian, hdr); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < recordCount; i++ {
		rec := v5Record{
			SrcAddr:  0x0A000001,
			DstAddr:  0x0A000002,
			NextHop:  0x0A0000FE,
			Input:    1,
			Output:   2,
			DPkts:    10,
			DOctets:  1000,
			First:    1000,
			Last:     2000,
			SrcPort:  1234,
			DstPort:  80,
			TCPFlags: 0x02,
			Proto:    6,
			Tos:      0,
			SrcAS:    100,
			DstAS:    200,
			SrcMask:  24,
			DstMask:  16,
		}
		if err := binary.Write(&buf, binary.BigEndian, rec); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	dict := testDictionary(t)
	return NewDecoder(logr.Discard(), dict)
}

func TestDecodeV5SingleRecord(t *testing.T) {
	d := newTestDecoder(t)
	payload := buildV5Datagram(t, 1)

	var events []*Event
	d.decodeV5(payload, "10.1.1.1", func(ev *Event) {
		events = append(events, ev)
	})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if v, _ := ev.Get("ipv4_src_addr"); v != "10.0.0.1" {
		t.Fatalf("expected ipv4_src_addr 10.0.0.1, got %v", v)
	}
	if v, _ := ev.Get("engine_type"); v != uint64(1) {
		t.Fatalf("expected engine_type 1, got %v", v)
	}
	if v, _ := ev.Get("engine_id"); v != uint64(2) {
		t.Fatalf("expected engine_id 2, got %v", v)
	}
	if v, _ := ev.Get("sampling_algorithm"); v != uint64(1) {
		t.Fatalf("expected sampling_algorithm 1, got %v", v)
	}
	if v, _ := ev.Get("protocol"); v != uint64(6) {
		t.Fatalf("expected protocol 6, got %v", v)
	}
}

func TestDecodeV5LengthMismatchDropsDatagram(t *testing.T) {
	d := newTestDecoder(t)
	payload := buildV5Datagram(t, 1)
	payload = append(payload, 0x00) // corrupt the trailing length

	var called bool
	d.decodeV5(payload, "10.1.1.1", func(ev *Event) { called = true })
	if called {
		t.Fatal("expected length-mismatched v5 datagram to be dropped")
	}
}
