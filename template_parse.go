package netflow

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const enterpriseBit = uint16(0x8000)

// parseV9TemplateRecord reads one template definition from a template
// flowset body: {template_id, field_count} followed by field_count
// {field_type, field_length} pairs (§6 "Wire formats").
func parseV9TemplateRecord(r *bytes.Reader) (templateID uint16, fields []rawField, err error) {
	var head struct {
		TemplateID uint16
		FieldCount uint16
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return 0, nil, fmt.Errorf("%w: v9 template record header: %v", ErrTruncatedPDU, err)
	}
	fields = make([]rawField, 0, head.FieldCount)
	for i := uint16(0); i < head.FieldCount; i++ {
		var f struct {
			Type   uint16
			Length uint16
		}
		if err := binary.Read(r, binary.BigEndian, &f); err != nil {
			return 0, nil, fmt.Errorf("%w: v9 template field %d: %v", ErrTruncatedPDU, i, err)
		}
		fields = append(fields, rawField{FieldType: f.Type, WireLength: f.Length})
	}
	return head.TemplateID, fields, nil
}

// parseV9OptionsTemplateRecord reads one NetFlow v9 options template:
// {template_id, option_scope_length, option_length} followed by
// scope_length/4 scope fields, then option_length/4 option fields.
func parseV9OptionsTemplateRecord(r *bytes.Reader) (templateID uint16, fields []rawField, err error) {
	var head struct {
		TemplateID        uint16
		OptionScopeLength uint16
		OptionLength      uint16
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return 0, nil, fmt.Errorf("%w: v9 options template header: %v", ErrTruncatedPDU, err)
	}
	if head.OptionScopeLength%4 != 0 || head.OptionLength%4 != 0 {
		return 0, nil, fmt.Errorf("%w: v9 options template lengths not field-aligned", ErrMalformedHeader)
	}

	readFields := func(count int, isScope bool) error {
		for i := 0; i < count; i++ {
			var f struct {
				Type   uint16
				Length uint16
			}
			if err := binary.Read(r, binary.BigEndian, &f); err != nil {
				return fmt.Errorf("%w: v9 options template field: %v", ErrTruncatedPDU, err)
			}
			fields = append(fields, rawField{FieldType: f.Type, WireLength: f.Length, IsScope: isScope})
		}
		return nil
	}

	if err := readFields(int(head.OptionScopeLength/4), true); err != nil {
		return 0, nil, err
	}
	if err := readFields(int(head.OptionLength/4), false); err != nil {
		return 0, nil, err
	}
	return head.TemplateID, fields, nil
}

// parseIPFIXTemplateRecord reads one IPFIX template record: {template_id,
// field_count} followed by field_count field specifiers, each {field_id
// (top bit = enterprise flag), length} optionally followed by a 4-byte
// enterprise number.
func parseIPFIXTemplateRecord(r *bytes.Reader) (templateID uint16, fields []rawField, err error) {
	var head struct {
		TemplateID uint16
		FieldCount uint16
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return 0, nil, fmt.Errorf("%w: ipfix template record header: %v", ErrTruncatedPDU, err)
	}
	fields, err = readIPFIXFieldSpecifiers(r, int(head.FieldCount))
	if err != nil {
		return 0, nil, err
	}
	return head.TemplateID, fields, nil
}

// parseIPFIXOptionsTemplateRecord reads one IPFIX options template record:
// {template_id, field_count, scope_field_count} followed by field_count
// field specifiers, the first scope_field_count of which are scope fields.
func parseIPFIXOptionsTemplateRecord(r *bytes.Reader) (templateID uint16, fields []rawField, err error) {
	var head struct {
		TemplateID      uint16
		FieldCount      uint16
		ScopeFieldCount uint16
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return 0, nil, fmt.Errorf("%w: ipfix options template header: %v", ErrTruncatedPDU, err)
	}
	if head.ScopeFieldCount > head.FieldCount {
		return 0, nil, fmt.Errorf("%w: ipfix options template scope_field_count exceeds field_count", ErrMalformedHeader)
	}
	fields, err = readIPFIXFieldSpecifiers(r, int(head.FieldCount))
	if err != nil {
		return 0, nil, err
	}
	for i := 0; i < int(head.ScopeFieldCount); i++ {
		fields[i].IsScope = true
	}
	return head.TemplateID, fields, nil
}

func readIPFIXFieldSpecifiers(r *bytes.Reader, count int) ([]rawField, error) {
	fields := make([]rawField, 0, count)
	for i := 0; i < count; i++ {
		var f struct {
			FieldID uint16
			Length  uint16
		}
		if err := binary.Read(r, binary.BigEndian, &f); err != nil {
			return nil, fmt.Errorf("%w: ipfix field specifier %d: %v", ErrTruncatedPDU, i, err)
		}
		rf := rawField{WireLength: f.Length}
		if f.FieldID&enterpriseBit != 0 {
			var ent uint32
			if err := binary.Read(r, binary.BigEndian, &ent); err != nil {
				return nil, fmt.Errorf("%w: ipfix enterprise number for field %d: %v", ErrTruncatedPDU, i, err)
			}
			rf.EnterpriseID = ent
			rf.FieldType = f.FieldID &^ enterpriseBit
		} else {
			rf.FieldType = f.FieldID
		}
		fields = append(fields, rf)
	}
	return fields, nil
}
