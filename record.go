package netflow

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/flowforge/netflow/iana/version"
)

const ntpEpochOffset = 2208988800 // seconds between 1900-01-01 and 1970-01-01

// pduContext carries the per-datagram values the Record Decoder (§4.E)
// needs to seed and normalize each Event: the synthesized timestamp, the
// promoted header fields, and the exporter identity used for template and
// sampler lookups.
type pduContext struct {
	Version          version.ProtocolVersion
	Host             string
	SourceID         uint32 // v9 source_id / IPFIX observation_domain_id
	UnixSec          uint32
	UnixNsec         uint32
	UptimeMs         uint32
	FlowSeqNum       uint32
	FlowsetID        uint16
	IncludeFlowsetID bool
}

// decodeDataRecord reads one record's worth of fields from r according to
// tmpl, normalizes timestamps, and either returns a ready-to-emit Event or
// routes the record to the sampler table if it is a sampler definition
// (§4.E rules 4-5).
func decodeDataRecord(ctx context.Context, tmpl *Template, r *bytes.Reader, pctx pduContext, cfg Options, samplers *SamplerTable) (*Event, error) {
	ev := NewEvent()
	seedEvent(ev, pctx)

	for _, f := range tmpl.Fields {
		value, _, err := f.decode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrTruncatedPDU, f.Name, err)
		}
		if !f.HasValue() {
			continue
		}
		ev.Set(f.Name, normalizeField(f.Name, value, pctx, cfg))
	}

	if isSamplerRecord(ev) {
		if samplers != nil {
			routeToSamplerTable(ctx, samplers, pctx, ev)
		}
		return nil, nil
	}

	if samplers != nil {
		decorateFromSampler(ctx, ev, samplers, pctx)
	}

	return ev, nil
}

func seedEvent(ev *Event, pctx pduContext) {
	ev.Set("@timestamp", isoTimestampMillis(time.Unix(int64(pctx.UnixSec), int64(pctx.UnixNsec)).UTC()))

	switch pctx.Version {
	case version.NetFlowV9:
		ev.Set("version", uint64(9))
		ev.Set("flow_seq_num", uint64(pctx.FlowSeqNum))
	case version.IPFIX:
		ev.Set("version", uint64(10))
	}
	if pctx.IncludeFlowsetID {
		ev.Set("flowset_id", uint64(pctx.FlowsetID))
	}
}

const (
	fieldFlowSamplerID             = "flow_sampler_id"
	fieldFlowSamplerMode           = "flow_sampler_mode"
	fieldFlowSamplerRandomInterval = "flow_sampler_random_interval"
	fieldSamplingAlgorithm         = "sampling_algorithm"
	fieldSamplingInterval          = "sampling_interval"
)

func isSamplerRecord(ev *Event) bool {
	return ev.Has(fieldFlowSamplerID) && ev.Has(fieldFlowSamplerMode) && ev.Has(fieldFlowSamplerRandomInterval)
}

func routeToSamplerTable(ctx context.Context, samplers *SamplerTable, pctx pduContext, ev *Event) {
	id, _ := ev.Get(fieldFlowSamplerID)
	mode, _ := ev.Get(fieldFlowSamplerMode)
	interval, _ := ev.Get(fieldFlowSamplerRandomInterval)

	key := SamplerKey{Host: pctx.Host, SourceID: pctx.SourceID, SamplerID: toUint64(id)}
	samplers.Put(ctx, key, SamplerRecord{Mode: toUint64(mode), Interval: toUint64(interval)})
}

func decorateFromSampler(ctx context.Context, ev *Event, samplers *SamplerTable, pctx pduContext) {
	idVal, ok := ev.Get(fieldFlowSamplerID)
	if !ok {
		return
	}
	key := SamplerKey{Host: pctx.Host, SourceID: pctx.SourceID, SamplerID: toUint64(idVal)}
	rec, ok := samplers.Lookup(ctx, key)
	if !ok {
		return
	}
	ev.SetIfAbsent(fieldSamplingAlgorithm, rec.Mode)
	ev.SetIfAbsent(fieldSamplingInterval, rec.Interval)
}

func toUint64(v interface{}) uint64 {
	if u, ok := v.(uint64); ok {
		return u
	}
	return 0
}

// normalizeField applies the per-name timestamp normalization rules of
// §4.E rule 3. Fields with no special meaning pass through unchanged.
func normalizeField(name string, value interface{}, pctx pduContext, cfg Options) interface{} {
	switch name {
	case "first_switched", "last_switched":
		if cfg.SwitchedTimesFromUptime {
			return value
		}
		msec, ok := value.(uint64)
		if !ok {
			return value
		}
		return isoTimestampMillis(switchedTime(pctx.UnixSec, pctx.UnixNsec, pctx.UptimeMs, uint32(msec)))

	case "flowStartSeconds", "flowEndSeconds":
		v, ok := value.(uint64)
		if !ok {
			return value
		}
		return time.Unix(int64(v), 0).UTC().Format("2006-01-02T15:04:05")

	case "flowStartMilliseconds", "flowEndMilliseconds":
		v, ok := value.(uint64)
		if !ok {
			return value
		}
		return isoTimestampMillis(time.Unix(int64(v/1000), int64(v%1000)*int64(time.Millisecond)).UTC())

	case "flowStartMicroseconds", "flowEndMicroseconds":
		v, ok := value.(uint64)
		if !ok {
			return value
		}
		return isoTimestampMicros(time.Unix(int64(v/1_000_000), int64(v%1_000_000)*int64(time.Microsecond)).UTC())

	case "flowStartNanoseconds", "flowEndNanoseconds":
		v, ok := value.(uint64)
		if !ok {
			return value
		}
		if pctx.Version == version.IPFIX {
			return isoTimestampNanos(ntpToTime(v))
		}
		return isoTimestampNanos(time.Unix(0, int64(v)).UTC())

	default:
		return value
	}
}

// switchedTime converts a boot-relative millisecond timestamp (first_switched
// or last_switched) to wall-clock time, given the exporter's current uptime
// and the PDU's own capture timestamp, per §4.E rule 3.
func switchedTime(unixSec, unixNsec, uptimeMs, msec uint32) time.Time {
	deltaMs := int64(uptimeMs) - int64(msec)
	secs := int64(unixSec) - deltaMs/1000
	us := int64(unixNsec)/1000 - (deltaMs%1000)*1000
	if us < 0 {
		us += 1_000_000
		secs--
	}
	return time.Unix(secs, us*1000).UTC()
}

// ntpToTime converts a 64-bit NTP timestamp (32-bit seconds since
// 1900-01-01 plus 32-bit binary fraction) to a Go time, as used by IPFIX
// flowStart/EndNanoseconds.
func ntpToTime(v uint64) time.Time {
	secs := int64(v>>32) - ntpEpochOffset
	frac := uint32(v & 0xFFFFFFFF)
	nanos := uint64(frac) * 1_000_000_000 / (1 << 32)
	return time.Unix(secs, int64(nanos)).UTC()
}

func isoTimestampMillis(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z")
}

func isoTimestampMicros(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000Z")
}

func isoTimestampNanos(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000000Z")
}
