package netflow

import (
	"bytes"
	"encoding/binary"
	"net"
	"time"

	"github.com/flowforge/netflow/iana/version"
)

// v5Header is the fixed 24-byte NetFlow v5 PDU header (§4.G).
type v5Header struct {
	Version    uint16
	FlowCount  uint16
	UptimeMs   uint32
	UnixSec    uint32
	UnixNsec   uint32
	FlowSeqNum uint32
	Engine     uint16
	Sampling   uint16
}

// v5Record is the fixed 48-byte NetFlow v5 flow record.
type v5Record struct {
	SrcAddr  uint32
	DstAddr  uint32
	NextHop  uint32
	Input    uint16
	Output   uint16
	DPkts    uint32
	DOctets  uint32
	First    uint32
	Last     uint32
	SrcPort  uint16
	DstPort  uint16
	_        uint8 // pad1
	TCPFlags uint8
	Proto    uint8
	Tos      uint8
	SrcAS    uint16
	DstAS    uint16
	SrcMask  uint8
	DstMask  uint8
	_        uint16 // pad2
}

const (
	v5HeaderSize = 24
	v5RecordSize = 48
)

// decodeV5 implements the V5 Fast Path (§4.G): a direct, non-template-driven
// decode of the fixed header and fixed-layout records, bypassing the
// Layout Resolver entirely since v5 has no templates.
func (d *Decoder) decodeV5(payload []byte, host string, sink EventSink) {
	if len(payload) < v5HeaderSize {
		warn(d.log, ErrTruncatedPDU, "netflow v5 datagram shorter than header", "host", host)
		DroppedDatagramsTotal.WithLabelValues("malformed_header").Inc()
		return
	}

	r := bytes.NewReader(payload)
	var hdr v5Header
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		warn(d.log, err, "malformed netflow v5 header", "host", host)
		DroppedDatagramsTotal.WithLabelValues("malformed_header").Inc()
		return
	}

	want := int(hdr.FlowCount) * v5RecordSize
	if len(payload)-v5HeaderSize != want {
		warn(d.log, ErrLengthMismatch, "netflow v5 payload length does not match flow_records*48",
			"host", host, "flowRecords", hdr.FlowCount, "payloadLen", len(payload))
		DroppedDatagramsTotal.WithLabelValues("length_mismatch").Inc()
		return
	}

	engineType := hdr.Engine >> 8
	engineID := hdr.Engine & 0xFF
	samplingAlgorithm := hdr.Sampling >> 14
	samplingInterval := hdr.Sampling & 0x3FFF

	ctx := pduContext{
		Version:    version.NetFlowV5,
		Host:       host,
		UnixSec:    hdr.UnixSec,
		UnixNsec:   hdr.UnixNsec,
		UptimeMs:   hdr.UptimeMs,
		FlowSeqNum: hdr.FlowSeqNum,
	}

	for i := uint16(0); i < hdr.FlowCount; i++ {
		var rec v5Record
		if err := binary.Read(r, binary.BigEndian, &rec); err != nil {
			warn(d.log, err, "truncated netflow v5 record", "host", host, "index", i)
			DroppedRecordsTotal.WithLabelValues("truncated").Inc()
			return
		}

		ev := NewEvent()
		ev.Set("@timestamp", isoTimestampMillis(time.Unix(int64(hdr.UnixSec), int64(hdr.UnixNsec)).UTC()))
		ev.Set("version", uint64(5))
		ev.Set("flow_seq_num", uint64(hdr.FlowSeqNum))
		ev.Set("engine_type", uint64(engineType))
		ev.Set("engine_id", uint64(engineID))

		ev.Set("ipv4_src_addr", ipv4String(rec.SrcAddr))
		ev.Set("ipv4_dst_addr", ipv4String(rec.DstAddr))
		ev.Set("ipv4_next_hop", ipv4String(rec.NextHop))
		ev.Set("input_snmp", uint64(rec.Input))
		ev.Set("output_snmp", uint64(rec.Output))
		ev.Set("in_pkts", uint64(rec.DPkts))
		ev.Set("in_bytes", uint64(rec.DOctets))
		ev.Set("first_switched", normalizeField("first_switched", uint64(rec.First), ctx, d.opts))
		ev.Set("last_switched", normalizeField("last_switched", uint64(rec.Last), ctx, d.opts))
		ev.Set("l4_src_port", uint64(rec.SrcPort))
		ev.Set("l4_dst_port", uint64(rec.DstPort))
		ev.Set("tcp_flags", uint64(rec.TCPFlags))
		ev.Set("protocol", uint64(rec.Proto))
		ev.Set("tos", uint64(rec.Tos))
		ev.Set("src_as", uint64(rec.SrcAS))
		ev.Set("dst_as", uint64(rec.DstAS))
		ev.Set("src_mask", uint64(rec.SrcMask))
		ev.Set("dst_mask", uint64(rec.DstMask))
		ev.Set("sampling_algorithm", uint64(samplingAlgorithm))
		ev.Set("sampling_interval", uint64(samplingInterval))

		DecodedRecordsTotal.WithLabelValues("5").Inc()
		sink(ev)
	}
	DecodedSetsTotal.WithLabelValues("fixed").Inc()
}

func ipv4String(v uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return net.IP(b).String()
}
