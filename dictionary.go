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
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed data/netflow9_fields.yaml
var defaultNetFlow9Fields []byte

//go:embed data/ipfix_fields.yaml
var defaultIPFIXFields []byte

// rawFieldDef is one YAML definition array as described in §4.A:
//
//	[<type-atom>, "<field_name>"]
//	[<integer default_byte_length>, "<field_name>"]
//
// The first element is polymorphic (a ":atom"-style string or a bare
// integer), which is why this needs a hand-rolled UnmarshalYAML instead of a
// plain struct tag.
type rawFieldDef struct {
	Atom          string // e.g. "uint8", "ipv4_addr", "skip"; empty if DefaultLength form used
	DefaultLength int    // only meaningful when Atom == ""
	Name          string
}

func (d *rawFieldDef) UnmarshalYAML(node *yaml.Node) error {
	var raw []yaml.Node
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%w: field definition must be a 2-element array: %v", ErrConfigInvalid, err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("%w: field definition must have exactly 2 elements, got %d", ErrConfigInvalid, len(raw))
	}

	switch raw[0].Tag {
	case "!!int":
		var n int
		if err := raw[0].Decode(&n); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		d.DefaultLength = n
		d.Atom = ""
	default:
		var s string
		if err := raw[0].Decode(&s); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		d.Atom = trimAtom(s)
	}

	if err := raw[1].Decode(&d.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

func trimAtom(s string) string {
	if len(s) > 0 && s[0] == ':' {
		return s[1:]
	}
	return s
}

// v9DictFile is the top-level shape of a NetFlow v9 field dictionary YAML
// file: two categories, scope (system-level option-template scope fields)
// and option (every other field, including ordinary data template fields).
type v9DictFile struct {
	Scope  map[uint16]rawFieldDef `yaml:"scope"`
	Option map[uint16]rawFieldDef `yaml:"option"`
}

// ipfixDictFile maps enterprise id (0 == IANA) to field id to definition.
type ipfixDictFile map[uint32]map[uint16]rawFieldDef

// Dictionary is the read-only (after construction) mapping from
// (enterprise_id, field_id) to field definition for both NetFlow v9 and
// IPFIX, per §4.A. It is safe to share by reference across goroutines once
// loaded; nothing mutates it after LoadDictionary returns.
type Dictionary struct {
	v9Scope  map[uint16]rawFieldDef
	v9Option map[uint16]rawFieldDef
	ipfix    ipfixDictFile
}

// LoadDictionary reads the default NetFlow v9 and IPFIX field dictionaries,
// optionally augmented by user-supplied files whose contents are merged into
// the "option" submapping (v9) or directly by enterprise id (IPFIX).
// v9Extra and ipfixExtra may be nil to skip augmentation.
func LoadDictionary(v9Extra, ipfixExtra io.Reader) (*Dictionary, error) {
	var v9 v9DictFile
	if err := yaml.Unmarshal(defaultNetFlow9Fields, &v9); err != nil {
		return nil, fmt.Errorf("%w: default netflow9 dictionary: %v", ErrConfigInvalid, err)
	}
	var ipfix ipfixDictFile
	if err := yaml.Unmarshal(defaultIPFIXFields, &ipfix); err != nil {
		return nil, fmt.Errorf("%w: default ipfix dictionary: %v", ErrConfigInvalid, err)
	}
	if ipfix == nil {
		ipfix = ipfixDictFile{}
	}

	d := &Dictionary{
		v9Scope:  v9.Scope,
		v9Option: v9.Option,
		ipfix:    ipfix,
	}

	if v9Extra != nil {
		if err := d.mergeV9(v9Extra); err != nil {
			return nil, err
		}
	}
	if ipfixExtra != nil {
		if err := d.mergeIPFIX(ipfixExtra); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dictionary) mergeV9(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: reading netflow9 definitions file: %v", ErrConfigInvalid, err)
	}
	dec := yaml.NewDecoder(bytesReader(b))
	dec.KnownFields(true)
	var extra v9DictFile
	if err := dec.Decode(&extra); err != nil {
		return fmt.Errorf("%w: parsing netflow9 definitions file: %v", ErrConfigInvalid, err)
	}
	if extra.Option == nil {
		return fmt.Errorf("%w: netflow9 definitions file has no \"option\" merge target", ErrConfigInvalid)
	}
	if d.v9Option == nil {
		d.v9Option = map[uint16]rawFieldDef{}
	}
	for id, def := range extra.Option {
		d.v9Option[id] = def
	}
	return nil
}

func (d *Dictionary) mergeIPFIX(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: reading ipfix definitions file: %v", ErrConfigInvalid, err)
	}
	dec := yaml.NewDecoder(bytesReader(b))
	dec.KnownFields(true)
	var extra ipfixDictFile
	if err := dec.Decode(&extra); err != nil {
		return fmt.Errorf("%w: parsing ipfix definitions file: %v", ErrConfigInvalid, err)
	}
	if extra == nil {
		return fmt.Errorf("%w: ipfix definitions file is empty", ErrConfigInvalid)
	}
	for enterpriseID, fields := range extra {
		if d.ipfix[enterpriseID] == nil {
			d.ipfix[enterpriseID] = map[uint16]rawFieldDef{}
		}
		for id, def := range fields {
			d.ipfix[enterpriseID][id] = def
		}
	}
	return nil
}

// lookupV9 resolves a NetFlow v9 field by id, consulting the scope category
// first when isScope is set (options-template scope fields), and the option
// category otherwise (or as fallback).
func (d *Dictionary) lookupV9(fieldType uint16, isScope bool) (rawFieldDef, bool) {
	if isScope {
		if def, ok := d.v9Scope[fieldType]; ok {
			return def, true
		}
	}
	def, ok := d.v9Option[fieldType]
	return def, ok
}

func (d *Dictionary) lookupIPFIX(enterpriseID uint32, fieldType uint16) (rawFieldDef, bool) {
	fields, ok := d.ipfix[enterpriseID]
	if !ok {
		return rawFieldDef{}, false
	}
	def, ok := fields[fieldType]
	return def, ok
}
