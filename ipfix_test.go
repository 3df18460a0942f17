package netflow

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/flowforge/netflow/iana/version"
)

func buildIPFIXHeader(t *testing.T, length uint16, odid uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := ipfixHeader{Version: 10, Length: length, UnixSec: 1700000000, Seq: 1, ObservationDomainID: odid}
	if err := binary.Write(&buf, binary.BigEndian, hdr); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func buildIPFIXFieldSpecifiers(t *testing.T, fields [][2]uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, f := range fields {
		pair := struct{ FieldID, Length uint16 }{f[0], f[1]}
		if err := binary.Write(&buf, binary.BigEndian, pair); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func TestDecodeIPFIXTemplateAndFlowStartNanoseconds(t *testing.T) {
	d := newTestDecoder(t)

	const templateID = uint16(500)
	var tmplBuf bytes.Buffer
	head := struct{ TemplateID, FieldCount uint16 }{templateID, 2}
	binary.Write(&tmplBuf, binary.BigEndian, head)
	tmplBuf.Write(buildIPFIXFieldSpecifiers(t, [][2]uint16{
		{8, 4},   // ipv4_src_addr
		{156, 8}, // flowStartNanoseconds
	}))
	templateSet := buildFlowset(t, ipfixFlowsetTemplate, tmplBuf.Bytes())

	// NTP timestamp: 1700000000 unix seconds + 0.5s fraction.
	ntpSeconds := uint32(1700000000 + ntpEpochOffset)
	ntpFrac := uint32(0x80000000)
	ntpValue := uint64(ntpSeconds)<<32 | uint64(ntpFrac)

	var dataBuf bytes.Buffer
	dataBuf.Write([]byte{203, 0, 113, 5})
	binary.Write(&dataBuf, binary.BigEndian, ntpValue)
	dataSet := buildFlowset(t, templateID, dataBuf.Bytes())

	var payload bytes.Buffer
	totalLen := 16 + len(templateSet) + len(dataSet)
	payload.Write(buildIPFIXHeader(t, uint16(totalLen), 7))
	payload.Write(templateSet)
	payload.Write(dataSet)

	var events []*Event
	d.Decode(context.Background(), payload.Bytes(), "203.0.113.5", func(ev *Event) {
		events = append(events, ev)
	})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if v, _ := ev.Get("ipv4_src_addr"); v != "203.0.113.5" {
		t.Fatalf("expected ipv4_src_addr 203.0.113.5, got %v", v)
	}
	ts, ok := ev.Get("flowStartNanoseconds")
	if !ok {
		t.Fatal("expected flowStartNanoseconds to be present")
	}
	if !strings.HasSuffix(ts.(string), ".500000000Z") {
		t.Fatalf("expected NTP fraction 0.5s to render as .500000000Z, got %v", ts)
	}
	if !strings.HasPrefix(ts.(string), "2023-11-14") {
		t.Fatalf("expected the unix-epoch date matching 1700000000s, got %v", ts)
	}
}

func TestDecodeIPFIXEnterpriseField(t *testing.T) {
	d := newTestDecoder(t)

	const templateID = uint16(600)
	var tmplBuf bytes.Buffer
	head := struct{ TemplateID, FieldCount uint16 }{templateID, 1}
	binary.Write(&tmplBuf, binary.BigEndian, head)
	binary.Write(&tmplBuf, binary.BigEndian, struct{ FieldID, Length uint16 }{1 | enterpriseBit, 4})
	binary.Write(&tmplBuf, binary.BigEndian, uint32(40982))
	templateSet := buildFlowset(t, ipfixFlowsetTemplate, tmplBuf.Bytes())

	var dataBuf bytes.Buffer
	binary.Write(&dataBuf, binary.BigEndian, uint32(999))
	dataSet := buildFlowset(t, templateID, dataBuf.Bytes())

	var payload bytes.Buffer
	totalLen := 16 + len(templateSet) + len(dataSet)
	payload.Write(buildIPFIXHeader(t, uint16(totalLen), 9))
	payload.Write(templateSet)
	payload.Write(dataSet)

	var events []*Event
	d.Decode(context.Background(), payload.Bytes(), "198.51.100.9", func(ev *Event) {
		events = append(events, ev)
	})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if v, _ := events[0].Get("custom_metric"); v != uint64(999) {
		t.Fatalf("expected custom_metric 999, got %v", v)
	}
}

func TestDecodeIPFIXMissingTemplateDropsDataSet(t *testing.T) {
	d := newTestDecoder(t)

	dataSet := buildFlowset(t, 700, []byte{1, 2, 3, 4})
	var payload bytes.Buffer
	totalLen := 16 + len(dataSet)
	payload.Write(buildIPFIXHeader(t, uint16(totalLen), 1))
	payload.Write(dataSet)

	var called bool
	d.Decode(context.Background(), payload.Bytes(), "198.51.100.1", func(ev *Event) { called = true })
	if called {
		t.Fatal("expected ipfix data set with no matching template to produce no events")
	}
}

func TestRegisterFixedWidthTemplateWidthMatchesWireLengths(t *testing.T) {
	dict := testDictionary(t)
	registry := NewRegistry(logr.Discard(), dict, time.Minute, nil)

	raw := []rawField{
		{FieldType: 8, WireLength: 4},  // ipv4_src_addr
		{FieldType: 12, WireLength: 4}, // ipv4_dst_addr
		{FieldType: 7, WireLength: 2},  // l4_src_port
	}
	key := TemplateKey{Version: version.IPFIX, SourceID: 1, TemplateID: 300}
	tmpl, err := registry.Register(context.Background(), key, raw, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	wantWidth := 0
	for _, f := range raw {
		wantWidth += int(f.WireLength)
	}
	if tmpl.FixedWidth != wantWidth {
		t.Fatalf("expected FixedWidth %d to equal sum of wire lengths, got %d", wantWidth, tmpl.FixedWidth)
	}
}

func TestRegisterOversizedTemplateRejectedByValidator(t *testing.T) {
	dict := testDictionary(t)
	registry := NewRegistry(logr.Discard(), dict, time.Minute, nil)

	raw := []rawField{
		{FieldType: 210, WireLength: 60000}, // skip, padding
		{FieldType: 210, WireLength: 10000}, // skip, padding
	}
	key := TemplateKey{Version: version.IPFIX, SourceID: 1, TemplateID: 301}
	tmpl, err := registry.Register(context.Background(), key, raw, rejectOversizedTemplates)
	if err != nil {
		t.Fatalf("Register: unexpected error: %v", err)
	}
	if tmpl != nil {
		t.Fatalf("expected oversized template to be rejected, got %+v", tmpl)
	}
	if _, ok := registry.Fetch(context.Background(), key); ok {
		t.Fatal("expected rejected template not to be cached")
	}
}

func TestRegistryPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := newTemplateStore(dir + "/templates.json")
	dict := testDictionary(t)
	registry := NewRegistry(logr.Discard(), dict, time.Minute, store)

	key := TemplateKey{Version: version.IPFIX, SourceID: 3, TemplateID: 256}
	raw := []rawField{{FieldType: 8, WireLength: 4}}
	if _, err := registry.Register(context.Background(), key, raw, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reloaded := NewRegistry(logr.Discard(), dict, time.Minute, store)
	reloaded.LoadPersisted(context.Background())

	tmpl, ok := reloaded.Fetch(context.Background(), key)
	if !ok {
		t.Fatal("expected persisted template to be reloaded")
	}
	if len(tmpl.Fields) != 1 || tmpl.Fields[0].Name != "ipv4_src_addr" {
		t.Fatalf("expected reloaded template to resolve ipv4_src_addr, got %+v", tmpl.Fields)
	}
}
