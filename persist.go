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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowforge/netflow/iana/version"
)

// templateStoreEnvelope is the on-disk JSON shape of a persisted template
// cache file (§6 "Persisted template cache file"). Keys are Template Key
// strings; values are the raw, unresolved field triples so the file
// survives dictionary updates between runs (Invariant 5).
type templateStoreEnvelope struct {
	ExportedAt time.Time             `json:"exported_at"`
	StoreType  string                `json:"store_type"`
	StoreName  string                `json:"store_name"`
	Templates  map[string][]rawField `json:"templates"`
}

// templateStore is a file-backed persistence target for IPFIX templates.
// The teacher's persistent.go closes and recreates the file in place; this
// upgrades that to a genuinely atomic replace via a temp file plus rename,
// so a crash mid-write can never leave a half-written cache file behind.
type templateStore struct {
	path string
	name string
}

func newTemplateStore(path string) *templateStore {
	return &templateStore{path: path, name: "ipfix-templates"}
}

func (s *templateStore) save(entries map[TemplateKey]*Template) error {
	out := make(map[string][]rawField, len(entries))
	for key, tmpl := range entries {
		if key.Version != version.IPFIX {
			continue
		}
		out[key.String()] = tmpl.RawFields
	}

	env := templateStoreEnvelope{
		ExportedAt: time.Now().UTC(),
		StoreType:  "file",
		StoreName:  s.name,
		Templates:  out,
	}

	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling template cache: %v", ErrCacheNotWritable, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tmp-template-cache-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %v", ErrCacheNotWritable, dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once Rename has succeeded

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing temp file: %v", ErrCacheNotWritable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %v", ErrCacheNotWritable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", ErrCacheNotWritable, s.path, err)
	}
	return nil
}

// load reads the backing file, parsing each stored key back into a
// TemplateKey. Parse failures for individual keys are skipped rather than
// failing the whole load, since one malformed entry should not sink the
// rest of the cache.
func (s *templateStore) load() (map[TemplateKey][]rawField, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[TemplateKey][]rawField{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCacheLoadFailure, s.path, err)
	}

	var env struct {
		Templates map[string][]rawField `json:"templates"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrCacheLoadFailure, s.path, err)
	}

	out := make(map[TemplateKey][]rawField, len(env.Templates))
	for ks, raw := range env.Templates {
		key, ok := parseTemplateKey(ks)
		if !ok {
			continue
		}
		out[key] = raw
	}
	return out, nil
}

func parseTemplateKey(s string) (TemplateKey, bool) {
	var verStr string
	var sourceID uint32
	var templateID uint16
	if n, _ := fmt.Sscanf(strings.ReplaceAll(s, "/", " "), "%s %d %d", &verStr, &sourceID, &templateID); n == 3 {
		var v version.ProtocolVersion
		if err := v.UnmarshalText([]byte(verStr)); err == nil {
			return TemplateKey{Version: v, SourceID: sourceID, TemplateID: templateID}, true
		}
	}
	return TemplateKey{}, false
}
