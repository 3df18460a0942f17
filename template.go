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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/flowforge/netflow/iana/version"
)

// TemplateKey identifies a template cache entry (§3 "Template Key"). For v9
// it is (host, source_id, template_id); for IPFIX, Host is always empty
// because the observation domain id already uniquely identifies the
// exporter per the header. Equality is plain struct equality — never
// concatenate into a string for hashing on the hot path (§9).
type TemplateKey struct {
	Version    version.ProtocolVersion
	Host       string
	SourceID   uint32
	TemplateID uint16
}

func (k TemplateKey) String() string {
	if k.Host == "" {
		return fmt.Sprintf("%s/%d/%d", k.Version, k.SourceID, k.TemplateID)
	}
	return fmt.Sprintf("%s/%s/%d/%d", k.Version, k.Host, k.SourceID, k.TemplateID)
}

// Template is the resolved result of registering a raw field list: an
// ordered list of concrete Field Specs plus bookkeeping needed by the
// Record Decoder to know how many records fit in a data flowset.
type Template struct {
	Key       TemplateKey
	Fields    []FieldSpec
	RawFields []rawField

	// FixedWidth is the sum of per-field byte widths, or -1 if any field is
	// variable-length (var_string/var_skip), in which case records must be
	// read one at a time until the flowset body is exhausted (§4.E).
	FixedWidth int

	IsOptions bool
}

func newTemplate(log logr.Logger, key TemplateKey, raw []rawField, dict *Dictionary, isIPFIX bool, isOptions bool) (*Template, error) {
	fields := make([]FieldSpec, 0, len(raw))
	width := 0
	for _, rf := range raw {
		spec, err := resolveField(log, rf, dict, isIPFIX)
		if err != nil {
			return nil, err
		}
		fields = append(fields, spec)
		w := spec.width()
		if w < 0 {
			width = -1
		} else if width >= 0 {
			width += w
		}
	}
	return &Template{
		Key:        key,
		Fields:     fields,
		RawFields:  raw,
		FixedWidth: width,
		IsOptions:  isOptions,
	}, nil
}

// Validator inspects a freshly resolved template and reports whether it may
// be cached. Returning false is the only legal way to refuse a template
// after resolution has already succeeded (§4.B).
type Validator func(*Template) bool

// maxReasonableTemplateWidth bounds a fixed-width template's summed field
// width to something a single flowset could plausibly carry. Corrupted
// field-length bytes resolve without a decode error, just an implausible
// width, so resolution alone can't catch them.
const maxReasonableTemplateWidth = 1 << 16

// rejectOversizedTemplates is the Validator wired into every Register call
// in this package: it refuses to cache a fixed-width template whose summed
// field width exceeds maxReasonableTemplateWidth (§7 UnresolvableTemplate).
func rejectOversizedTemplates(tmpl *Template) bool {
	return tmpl.FixedWidth < 0 || tmpl.FixedWidth <= maxReasonableTemplateWidth
}

// Registry is the Template Registry (§4.B): a TTL cache from TemplateKey to
// *Template, with optional JSON file persistence for IPFIX templates.
type Registry struct {
	cache *ttlCache[TemplateKey, *Template]
	dict  *Dictionary
	log   logr.Logger

	persistMu sync.Mutex
	persist   *templateStore
}

// NewRegistry constructs a Template Registry backed by dict for field
// resolution. If store is non-nil, every successful IPFIX registration is
// persisted to it.
func NewRegistry(log logr.Logger, dict *Dictionary, ttl time.Duration, store *templateStore) *Registry {
	return &Registry{
		cache:   newTTLCache[TemplateKey, *Template](ttl),
		dict:    dict,
		log:     logOrDiscard(log),
		persist: store,
	}
}

// LoadPersisted re-registers every entry found in the registry's backing
// store, if one is configured. Unreadable or malformed files are logged and
// ignored, never fatal (§4.B persistence).
func (r *Registry) LoadPersisted(ctx context.Context) {
	if r.persist == nil {
		return
	}
	entries, err := r.persist.load()
	if err != nil {
		warn(r.log, err, "failed to load persisted template cache")
		return
	}
	for key, raw := range entries {
		if _, err := r.Register(ctx, key, raw, rejectOversizedTemplates); err != nil {
			warn(r.log, err, "failed to re-register persisted template", "key", key.String())
		}
	}
}

// Register resolves raw against the dictionary, applies validator if given,
// and on success caches (and, for IPFIX keys, persists) the result. A
// validator rejection or resolution failure yields (nil, nil) and (nil,
// err) respectively; in neither case is anything cached or written.
func (r *Registry) Register(ctx context.Context, key TemplateKey, raw []rawField, validator Validator) (*Template, error) {
	isIPFIX := key.Version == version.IPFIX
	isOptions := false
	for _, f := range raw {
		if f.IsScope {
			isOptions = true
			break
		}
	}

	tmpl, err := newTemplate(r.log, key, raw, r.dict, isIPFIX, isOptions)
	if err != nil {
		return nil, err
	}

	if validator != nil && !validator(tmpl) {
		warn(r.log, ErrUnresolvableTemplate, "template rejected by validator", "key", key.String())
		return nil, nil
	}

	r.cache.Put(key, tmpl)
	live := 0
	for k := range r.cache.Snapshot() {
		if k.Version == key.Version {
			live++
		}
	}
	TemplatesCached.WithLabelValues(key.Version.String()).Set(float64(live))

	if isIPFIX && r.persist != nil {
		r.persistMu.Lock()
		defer r.persistMu.Unlock()
		snap := r.cache.Snapshot()
		if err := r.persist.save(snap); err != nil {
			warn(r.log, err, "failed to persist template cache")
		}
	}

	return tmpl, nil
}

// Fetch returns the live template for key, or (nil, false) if absent or
// expired.
func (r *Registry) Fetch(ctx context.Context, key TemplateKey) (*Template, bool) {
	return r.cache.Get(key)
}

// Persist rewrites the on-disk file to reflect the current live entry set.
func (r *Registry) Persist(ctx context.Context) error {
	if r.persist == nil {
		return nil
	}
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	return r.persist.save(r.cache.Snapshot())
}
