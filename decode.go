/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package netflow

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/flowforge/netflow/iana/version"
)

// EventSink receives one decoded Event at a time, in wire order within a
// single datagram (§5 "Ordering").
type EventSink func(event *Event)

// Decoder is the top-level entry point: it owns the Template Registry, the
// Sampler Table, and the Field Dictionary, and dispatches each datagram to
// the right version-specific PDU reader.
type Decoder struct {
	opts      Options
	dict      *Dictionary
	templates *Registry
	samplers  *SamplerTable
	log       logr.Logger
}

// NewDecoder builds a Decoder from dict, overlaying any overrides onto
// DefaultOptions (§6). If overrides name a CacheSavePath, the template
// registry attempts to load any previously persisted IPFIX templates before
// returning.
func NewDecoder(log logr.Logger, dict *Dictionary, overrides ...Options) *Decoder {
	opts := DefaultOptions()
	opts.Merge(overrides...)

	var store *templateStore
	if opts.CacheSavePath != "" {
		store = newTemplateStore(filepath.Join(opts.CacheSavePath, templateCacheFileName))
	}

	log = logOrDiscard(log)
	registry := NewRegistry(log, dict, opts.CacheTTL, store)
	registry.LoadPersisted(context.Background())

	return &Decoder{
		opts:      opts,
		dict:      dict,
		templates: registry,
		samplers:  NewSamplerTable(opts.CacheTTL),
		log:       log,
	}
}

// Decode parses one datagram payload from host and delivers every decoded
// Event to sink. Unrecoverable per-datagram errors are logged and the
// datagram is dropped; Decode has no return value, and a nil sink is logged
// as a warning and the call does nothing.
func (d *Decoder) Decode(ctx context.Context, payload []byte, host string, sink EventSink) {
	if sink == nil {
		warn(d.log, ErrConfigInvalid, "Decode called with a nil sink")
		return
	}
	if len(payload) < 2 {
		DroppedDatagramsTotal.WithLabelValues("too_short").Inc()
		return
	}

	v := version.ProtocolVersion(binary.BigEndian.Uint16(payload[:2]))
	if !d.opts.versionAllowed(v) {
		warn(d.log, ErrUnsupportedVersion, "dropping datagram with disabled version", "version", uint16(v), "host", host)
		DroppedDatagramsTotal.WithLabelValues("version_disabled").Inc()
		return
	}

	start := time.Now()
	defer func() {
		DecodeDurationMicroseconds.Observe(float64(time.Since(start).Microseconds()))
	}()

	switch v {
	case version.NetFlowV5:
		PacketsTotal.WithLabelValues("5").Inc()
		d.decodeV5(payload, host, sink)
	case version.NetFlowV9:
		PacketsTotal.WithLabelValues("9").Inc()
		d.decodeV9(ctx, payload, host, sink)
	case version.IPFIX:
		PacketsTotal.WithLabelValues("10").Inc()
		d.decodeIPFIX(ctx, payload, host, sink)
	default:
		warn(d.log, ErrUnsupportedVersion, "dropping datagram with unsupported version", "version", uint16(v), "host", host)
		DroppedDatagramsTotal.WithLabelValues("unsupported_version").Inc()
	}
}

func (d *Decoder) decodeV9(ctx context.Context, payload []byte, host string, sink EventSink) {
	r := bytes.NewReader(payload)
	hdr, err := readV9Header(r)
	if err != nil {
		warn(d.log, err, "dropping malformed netflow v9 header", "host", host)
		DroppedDatagramsTotal.WithLabelValues("malformed_header").Inc()
		return
	}

	pctx := pduContext{
		Version:          version.NetFlowV9,
		Host:             host,
		SourceID:         hdr.SourceID,
		UnixSec:          hdr.UnixSec,
		UptimeMs:         hdr.UptimeMs,
		FlowSeqNum:       hdr.Seq,
		IncludeFlowsetID: d.opts.IncludeFlowsetID,
	}

	for r.Len() >= 4 {
		fh, err := readFlowsetHeader(r)
		if err != nil {
			warn(d.log, err, "dropping remainder of v9 datagram", "host", host)
			DroppedDatagramsTotal.WithLabelValues("malformed_flowset").Inc()
			return
		}
		body, err := sliceFlowsetBody(r, fh)
		if err != nil {
			warn(d.log, err, "dropping truncated v9 flowset", "host", host, "flowsetId", fh.ID)
			DroppedDatagramsTotal.WithLabelValues("truncated_flowset").Inc()
			return
		}
		pctx.FlowsetID = fh.ID

		switch {
		case fh.ID == v9FlowsetTemplate:
			d.registerV9Templates(ctx, body, pctx)
		case fh.ID == v9FlowsetOptionsTemplate:
			d.registerV9OptionsTemplates(ctx, body, pctx)
		case fh.ID >= 256:
			key := TemplateKey{Version: version.NetFlowV9, Host: host, SourceID: hdr.SourceID, TemplateID: fh.ID}
			d.decodeDataFlowset(ctx, key, body, pctx, sink)
		default:
			warn(d.log, ErrMalformedHeader, "reserved v9 flowset id", "flowsetId", fh.ID)
		}
	}
}

func (d *Decoder) decodeIPFIX(ctx context.Context, payload []byte, host string, sink EventSink) {
	r := bytes.NewReader(payload)
	hdr, err := readIPFIXHeader(r)
	if err != nil {
		warn(d.log, err, "dropping malformed ipfix header", "host", host)
		DroppedDatagramsTotal.WithLabelValues("malformed_header").Inc()
		return
	}

	pctx := pduContext{
		Version:          version.IPFIX,
		Host:             "",
		SourceID:         hdr.ObservationDomainID,
		UnixSec:          hdr.UnixSec,
		FlowSeqNum:       hdr.Seq,
		IncludeFlowsetID: d.opts.IncludeFlowsetID,
	}

	for r.Len() >= 4 {
		fh, err := readFlowsetHeader(r)
		if err != nil {
			warn(d.log, err, "dropping remainder of ipfix message", "host", host)
			DroppedDatagramsTotal.WithLabelValues("malformed_flowset").Inc()
			return
		}
		body, err := sliceFlowsetBody(r, fh)
		if err != nil {
			warn(d.log, err, "dropping truncated ipfix set", "host", host, "setId", fh.ID)
			DroppedDatagramsTotal.WithLabelValues("truncated_flowset").Inc()
			return
		}
		pctx.FlowsetID = fh.ID

		switch {
		case fh.ID == ipfixFlowsetTemplate:
			d.registerIPFIXTemplates(ctx, body, pctx)
		case fh.ID == ipfixFlowsetOptionsTemplate:
			d.registerIPFIXOptionsTemplates(ctx, body, pctx)
		case fh.ID >= 4 && fh.ID <= 255:
			warn(d.log, ErrMalformedHeader, "reserved ipfix set id", "setId", fh.ID)
		case fh.ID >= 256:
			key := TemplateKey{Version: version.IPFIX, SourceID: hdr.ObservationDomainID, TemplateID: fh.ID}
			d.decodeDataFlowset(ctx, key, body, pctx, sink)
		}
	}
}

func sliceFlowsetBody(r *bytes.Reader, fh flowsetHeader) (*bytes.Reader, error) {
	bodyLen := int(fh.Length) - 4
	buf := make([]byte, bodyLen)
	n, err := r.Read(buf)
	if n < bodyLen || (err != nil && n < bodyLen) {
		return nil, ErrTruncatedPDU
	}
	return bytes.NewReader(buf), nil
}

func (d *Decoder) registerV9Templates(ctx context.Context, body *bytes.Reader, pctx pduContext) {
	for body.Len() >= 4 {
		tid, fields, err := parseV9TemplateRecord(body)
		if err != nil {
			warn(d.log, err, "dropping remainder of v9 template flowset")
			return
		}
		key := TemplateKey{Version: version.NetFlowV9, Host: pctx.Host, SourceID: pctx.SourceID, TemplateID: tid}
		if _, err := d.templates.Register(ctx, key, fields, rejectOversizedTemplates); err != nil {
			warn(d.log, err, "rejecting unresolvable v9 template", "templateId", tid)
		}
	}
}

func (d *Decoder) registerV9OptionsTemplates(ctx context.Context, body *bytes.Reader, pctx pduContext) {
	for body.Len() >= 6 {
		tid, fields, err := parseV9OptionsTemplateRecord(body)
		if err != nil {
			warn(d.log, err, "dropping remainder of v9 options template flowset")
			return
		}
		key := TemplateKey{Version: version.NetFlowV9, Host: pctx.Host, SourceID: pctx.SourceID, TemplateID: tid}
		if _, err := d.templates.Register(ctx, key, fields, rejectOversizedTemplates); err != nil {
			warn(d.log, err, "rejecting unresolvable v9 options template", "templateId", tid)
		}
	}
}

func (d *Decoder) registerIPFIXTemplates(ctx context.Context, body *bytes.Reader, pctx pduContext) {
	for body.Len() >= 4 {
		tid, fields, err := parseIPFIXTemplateRecord(body)
		if err != nil {
			warn(d.log, err, "dropping remainder of ipfix template set")
			return
		}
		key := TemplateKey{Version: version.IPFIX, SourceID: pctx.SourceID, TemplateID: tid}
		if _, err := d.templates.Register(ctx, key, fields, rejectOversizedTemplates); err != nil {
			warn(d.log, err, "rejecting unresolvable ipfix template", "templateId", tid)
		}
	}
}

func (d *Decoder) registerIPFIXOptionsTemplates(ctx context.Context, body *bytes.Reader, pctx pduContext) {
	for body.Len() >= 6 {
		tid, fields, err := parseIPFIXOptionsTemplateRecord(body)
		if err != nil {
			warn(d.log, err, "dropping remainder of ipfix options template set")
			return
		}
		key := TemplateKey{Version: version.IPFIX, SourceID: pctx.SourceID, TemplateID: tid}
		if _, err := d.templates.Register(ctx, key, fields, rejectOversizedTemplates); err != nil {
			warn(d.log, err, "rejecting unresolvable ipfix options template", "templateId", tid)
		}
	}
}

func (d *Decoder) decodeDataFlowset(ctx context.Context, key TemplateKey, body *bytes.Reader, pctx pduContext, sink EventSink) {
	tmpl, ok := d.templates.Fetch(ctx, key)
	if !ok {
		warn(d.log, missingTemplate(key), "no template for data flowset", "key", key.String())
		DroppedRecordsTotal.WithLabelValues("missing_template").Inc()
		return
	}

	kind := "fixed"
	if tmpl.FixedWidth < 0 {
		kind = "variable"
		for body.Len() > 0 {
			if !d.emitOneRecord(ctx, tmpl, body, pctx, sink) {
				return
			}
		}
		DecodedSetsTotal.WithLabelValues(kind).Inc()
		return
	}

	avail := body.Len()
	n := avail / tmpl.FixedWidth
	remainder := avail % tmpl.FixedWidth
	if remainder != 0 {
		warn(d.log, lengthMismatch(tmpl.FixedWidth, avail), "dropping data flowset with trailing bytes for fixed-width template",
			"key", key.String())
		DroppedRecordsTotal.WithLabelValues("length_mismatch").Inc()
		return
	}

	for i := 0; i < n; i++ {
		if !d.emitOneRecord(ctx, tmpl, body, pctx, sink) {
			return
		}
	}
	DecodedSetsTotal.WithLabelValues(kind).Inc()
}

func (d *Decoder) emitOneRecord(ctx context.Context, tmpl *Template, body *bytes.Reader, pctx pduContext, sink EventSink) bool {
	ev, err := decodeDataRecord(ctx, tmpl, body, pctx, d.opts, d.samplers)
	if err != nil {
		warn(d.log, err, "dropping truncated record", "key", tmpl.Key.String())
		DroppedRecordsTotal.WithLabelValues("truncated").Inc()
		return false
	}
	if ev == nil {
		return true // sampler definition record, routed to the sampler table
	}
	DecodedRecordsTotal.WithLabelValues(tmpl.Key.Version.String()).Inc()
	sink(ev)
	return true
}
