package netflow

import (
	"fmt"

	"github.com/go-logr/logr"
)

// rawField is the (field_type, wire_length, enterprise_id) triple carried by
// a template or options-template record field specifier, plus whether it
// appeared in a v9 options scope field list (affects dictionary lookup only).
type rawField struct {
	EnterpriseID uint32 `json:"enterprise_id"`
	FieldType    uint16 `json:"field_type"`
	WireLength   uint16 `json:"wire_length"`
	IsScope      bool   `json:"-"`
}

const sentinelLength = 0xFFFF

var addressAtomKinds = map[string]FieldKind{
	"ipv4_addr": KindIPv4Addr,
	"ipv6_addr": KindIPv6Addr,
	"mac_addr":  KindMacAddr,
}

// resolveField implements the Layout Resolver (§4.C): it maps one raw field
// triple to a concrete FieldSpec by consulting the dictionary and applying
// the eight resolution rules in order. A template resolves iff every field
// resolves; the caller must not cache a template for which any field fails.
func resolveField(log logr.Logger, raw rawField, dict *Dictionary, isIPFIX bool) (FieldSpec, error) {
	var def rawFieldDef
	var ok bool
	if isIPFIX {
		def, ok = dict.lookupIPFIX(raw.EnterpriseID, raw.FieldType)
	} else {
		def, ok = dict.lookupV9(raw.FieldType, raw.IsScope)
	}

	// Rule 1: unknown field.
	if !ok {
		warn(log, ErrUnknownField, "unresolvable field in template",
			"enterpriseId", raw.EnterpriseID, "fieldType", raw.FieldType, "wireLength", raw.WireLength)
		return FieldSpec{}, unknownField(raw.EnterpriseID, raw.FieldType, raw.WireLength)
	}

	sentinel := raw.WireLength == sentinelLength

	switch def.Atom {
	case "skip":
		// Rule 2.
		if sentinel {
			return FieldSpec{Kind: KindVarSkip, Name: def.Name}, nil
		}
		return FieldSpec{Kind: KindSkip, Name: def.Name, Length: int(raw.WireLength)}, nil

	case "string":
		// Rule 3.
		if sentinel {
			return FieldSpec{Kind: KindVarString, Name: def.Name}, nil
		}
		return FieldSpec{Kind: KindString, Name: def.Name, Length: int(raw.WireLength)}, nil

	case "octetarray":
		// Rule 4.
		return FieldSpec{Kind: KindOctetArray, Name: def.Name, Length: int(raw.WireLength)}, nil

	case "uint8", "uint16", "uint32", "uint64":
		// Rule 5.
		width := int(raw.WireLength)
		if width == 0 {
			width = atomDefaultWidth(def.Atom)
		}
		return FieldSpec{Kind: uintKindForWidth(width), Name: def.Name, Length: width}, nil

	case "application_id":
		// Rule 6.
		return FieldSpec{Kind: KindApplicationID, Name: def.Name, Length: int(raw.WireLength)}, nil

	case "":
		// Rule 7: bare integer default length form.
		width := int(raw.WireLength)
		if width == 0 {
			width = def.DefaultLength
		}
		return FieldSpec{Kind: uintKindForWidth(width), Name: def.Name, Length: width}, nil

	default:
		// Rule 8: pass fixed-width address/mac definitions through unchanged.
		if kind, ok := addressAtomKinds[def.Atom]; ok {
			return FieldSpec{Kind: kind, Name: def.Name}, nil
		}
		return FieldSpec{}, fmt.Errorf("%w: field %q has unrecognized atom %q", ErrConfigInvalid, def.Name, def.Atom)
	}
}

func atomDefaultWidth(atom string) int {
	switch atom {
	case "uint8":
		return 1
	case "uint16":
		return 2
	case "uint32":
		return 4
	case "uint64":
		return 8
	default:
		return 0
	}
}

func uintKindForWidth(width int) FieldKind {
	switch width {
	case 1:
		return KindUint8
	case 2:
		return KindUint16
	case 4:
		return KindUint32
	default:
		return KindUint64
	}
}
