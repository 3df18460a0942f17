package netflow

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
)

func buildFlowset(t *testing.T, id uint16, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	fh := flowsetHeader{ID: id, Length: uint16(len(body) + 4)}
	if err := binary.Write(&buf, binary.BigEndian, fh); err != nil {
		t.Fatal(err)
	}
	buf.Write(body)
	return buf.Bytes()
}

func buildV9TemplateBody(t *testing.T, templateID uint16, fields [][2]uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	head := struct{ TemplateID, FieldCount uint16 }{templateID, uint16(len(fields))}
	if err := binary.Write(&buf, binary.BigEndian, head); err != nil {
		t.Fatal(err)
	}
	for _, f := range fields {
		pair := struct{ Type, Length uint16 }{f[0], f[1]}
		if err := binary.Write(&buf, binary.BigEndian, pair); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func buildV9Header(t *testing.T, sourceID uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := v9Header{Version: 9, Count: 0, UptimeMs: 1000, UnixSec: 1700000000, Seq: 1, SourceID: sourceID}
	if err := binary.Write(&buf, binary.BigEndian, hdr); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeV9TemplateAndDataFlowset(t *testing.T) {
	d := newTestDecoder(t)

	const templateID = uint16(300)
	tmplBody := buildV9TemplateBody(t, templateID, [][2]uint16{
		{8, 4},  // ipv4_src_addr
		{12, 4}, // ipv4_dst_addr
		{7, 2},  // l4_src_port
		{1, 4},  // in_bytes
	})
	templateFlowset := buildFlowset(t, v9FlowsetTemplate, tmplBody)

	var dataBuf bytes.Buffer
	dataBuf.Write([]byte{10, 0, 0, 1})                     // ipv4_src_addr
	dataBuf.Write([]byte{10, 0, 0, 2})                     // ipv4_dst_addr
	binary.Write(&dataBuf, binary.BigEndian, uint16(1234)) // l4_src_port
	binary.Write(&dataBuf, binary.BigEndian, uint32(9000)) // in_bytes
	dataFlowset := buildFlowset(t, templateID, dataBuf.Bytes())

	var payload bytes.Buffer
	payload.Write(buildV9Header(t, 42))
	payload.Write(templateFlowset)
	payload.Write(dataFlowset)

	var events []*Event
	d.Decode(context.Background(), payload.Bytes(), "192.0.2.1", func(ev *Event) {
		events = append(events, ev)
	})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if v, _ := ev.Get("ipv4_src_addr"); v != "10.0.0.1" {
		t.Fatalf("expected ipv4_src_addr 10.0.0.1, got %v", v)
	}
	if v, _ := ev.Get("l4_src_port"); v != uint64(1234) {
		t.Fatalf("expected l4_src_port 1234, got %v", v)
	}
	if v, _ := ev.Get("in_bytes"); v != uint64(9000) {
		t.Fatalf("expected in_bytes 9000, got %v", v)
	}
}

func TestDecodeV9DataFlowsetWithTrailingBytesDropsWholeFlowset(t *testing.T) {
	d := newTestDecoder(t)

	const templateID = uint16(310)
	tmplBody := buildV9TemplateBody(t, templateID, [][2]uint16{
		{8, 4}, // ipv4_src_addr
	})
	templateFlowset := buildFlowset(t, v9FlowsetTemplate, tmplBody)

	// One full 4-byte record plus 2 trailing bytes that don't form another
	// record: the whole flowset must be dropped, not just the remainder.
	dataFlowset := buildFlowset(t, templateID, []byte{10, 0, 0, 1, 0xAA, 0xBB})

	var payload bytes.Buffer
	payload.Write(buildV9Header(t, 42))
	payload.Write(templateFlowset)
	payload.Write(dataFlowset)

	var called bool
	d.Decode(context.Background(), payload.Bytes(), "192.0.2.1", func(ev *Event) { called = true })
	if called {
		t.Fatal("expected a data flowset with a fixed-width remainder to produce no events")
	}
}

func TestDecodeV9DataFlowsetWithoutTemplateIsDropped(t *testing.T) {
	d := newTestDecoder(t)

	dataFlowset := buildFlowset(t, 999, []byte{1, 2, 3, 4})
	var payload bytes.Buffer
	payload.Write(buildV9Header(t, 1))
	payload.Write(dataFlowset)

	var called bool
	d.Decode(context.Background(), payload.Bytes(), "192.0.2.1", func(ev *Event) { called = true })
	if called {
		t.Fatal("expected data flowset with no matching template to produce no events")
	}
}

func TestDecodeV9OptionsTemplateRegistersSamplerAndDecoratesRecord(t *testing.T) {
	d := newTestDecoder(t)

	const optionsTemplateID = uint16(400)
	const dataTemplateID = uint16(401)

	// Options template: scope=template_id(4,scope idx 5), options=flow_sampler_id/mode/random_interval.
	var optBuf bytes.Buffer
	optHead := struct{ TemplateID, ScopeLen, OptLen uint16 }{optionsTemplateID, 4, 12}
	binary.Write(&optBuf, binary.BigEndian, optHead)
	binary.Write(&optBuf, binary.BigEndian, struct{ Type, Length uint16 }{5, 4}) // scope: template_id
	binary.Write(&optBuf, binary.BigEndian, struct{ Type, Length uint16 }{48, 1})
	binary.Write(&optBuf, binary.BigEndian, struct{ Type, Length uint16 }{49, 1})
	binary.Write(&optBuf, binary.BigEndian, struct{ Type, Length uint16 }{50, 4})
	optionsTemplateFlowset := buildFlowset(t, v9FlowsetOptionsTemplate, optBuf.Bytes())

	var optDataBuf bytes.Buffer
	binary.Write(&optDataBuf, binary.BigEndian, uint32(dataTemplateID)) // scope value
	optDataBuf.WriteByte(7)                                             // flow_sampler_id
	optDataBuf.WriteByte(1)                                             // flow_sampler_mode
	binary.Write(&optDataBuf, binary.BigEndian, uint32(100))            // flow_sampler_random_interval
	optionsDataFlowset := buildFlowset(t, optionsTemplateID, optDataBuf.Bytes())

	dataTmplBody := buildV9TemplateBody(t, dataTemplateID, [][2]uint16{
		{8, 4},  // ipv4_src_addr
		{48, 1}, // flow_sampler_id
	})
	dataTemplateFlowset := buildFlowset(t, v9FlowsetTemplate, dataTmplBody)

	var dataBuf bytes.Buffer
	dataBuf.Write([]byte{192, 168, 1, 1})
	dataBuf.WriteByte(7)
	dataFlowset := buildFlowset(t, dataTemplateID, dataBuf.Bytes())

	var payload bytes.Buffer
	payload.Write(buildV9Header(t, 55))
	payload.Write(optionsTemplateFlowset)
	payload.Write(dataTemplateFlowset)
	payload.Write(optionsDataFlowset)
	payload.Write(dataFlowset)

	var events []*Event
	d.Decode(context.Background(), payload.Bytes(), "198.51.100.1", func(ev *Event) {
		events = append(events, ev)
	})

	if len(events) != 1 {
		t.Fatalf("expected 1 event (the options record must be routed, not emitted), got %d", len(events))
	}
	ev := events[0]
	if v, _ := ev.Get("ipv4_src_addr"); v != "192.168.1.1" {
		t.Fatalf("expected ipv4_src_addr 192.168.1.1, got %v", v)
	}
	if v, ok := ev.Get("sampling_algorithm"); !ok || v != uint64(1) {
		t.Fatalf("expected sampling_algorithm decorated with 1, got %v ok=%v", v, ok)
	}
}
