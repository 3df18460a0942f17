package netflow

import (
	"context"
	"fmt"
	"time"
)

// SamplerKey identifies one sampler entry: (host, source_id, sampler_id) per
// §3 "Sampler Record".
type SamplerKey struct {
	Host      string
	SourceID  uint32
	SamplerID uint64
}

func (k SamplerKey) String() string {
	return fmt.Sprintf("%s/%d/%d", k.Host, k.SourceID, k.SamplerID)
}

// SamplerRecord is the decoded content of an options-template record that
// describes a sampler: its algorithm (mode) and interval.
type SamplerRecord struct {
	Mode     uint64
	Interval uint64
}

// SamplerTable is the Sampler Table (§4.F): a TTL cache identical in
// mechanics to the Template Registry, keyed by SamplerKey, written whenever
// an options record identifies itself as a sampler definition and consulted
// whenever a data record carries a flow_sampler_id.
type SamplerTable struct {
	cache *ttlCache[SamplerKey, SamplerRecord]
}

// NewSamplerTable constructs an empty table with the given entry TTL.
func NewSamplerTable(ttl time.Duration) *SamplerTable {
	return &SamplerTable{cache: newTTLCache[SamplerKey, SamplerRecord](ttl)}
}

// Put write-through registers or refreshes a sampler's parameters. Every
// write sweeps expired entries, per §4.F "cleaned on every write".
func (t *SamplerTable) Put(ctx context.Context, key SamplerKey, rec SamplerRecord) {
	t.cache.Put(key, rec)
}

// Lookup returns the live sampler parameters for key, if any.
func (t *SamplerTable) Lookup(ctx context.Context, key SamplerKey) (SamplerRecord, bool) {
	return t.cache.Get(key)
}
