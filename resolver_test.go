package netflow

import (
	"io"
	"testing"

	"github.com/go-logr/logr"
)

func testDictionary(t *testing.T) *Dictionary {
	t.Helper()
	dict, err := LoadDictionary(io.Reader(nil), io.Reader(nil))
	if err != nil {
		t.Fatalf("LoadDictionary: %v", err)
	}
	return dict
}

func TestResolveFieldUnknownFieldRejected(t *testing.T) {
	dict := testDictionary(t)
	_, err := resolveField(logr.Discard(), rawField{FieldType: 65000, WireLength: 4}, dict, false)
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestResolveFieldSkipVariants(t *testing.T) {
	dict := testDictionary(t)

	spec, err := resolveField(logr.Discard(), rawField{FieldType: 210, WireLength: 6}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindSkip || spec.Length != 6 {
		t.Fatalf("expected fixed skip of length 6, got %+v", spec)
	}

	spec, err = resolveField(logr.Discard(), rawField{FieldType: 210, WireLength: sentinelLength}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindVarSkip {
		t.Fatalf("expected var_skip for sentinel length, got %+v", spec)
	}
}

func TestResolveFieldStringVariants(t *testing.T) {
	dict := testDictionary(t)

	spec, err := resolveField(logr.Discard(), rawField{FieldType: 82, WireLength: 16}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindString || spec.Length != 16 {
		t.Fatalf("expected fixed string of length 16, got %+v", spec)
	}

	spec, err = resolveField(logr.Discard(), rawField{FieldType: 82, WireLength: sentinelLength}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindVarString {
		t.Fatalf("expected var_string for sentinel length, got %+v", spec)
	}
}

func TestResolveFieldUintDefaultsToDictionaryWidthWhenWireLengthZero(t *testing.T) {
	dict := testDictionary(t)
	spec, err := resolveField(logr.Discard(), rawField{FieldType: 1, WireLength: 0}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindUint32 || spec.Length != 4 {
		t.Fatalf("expected uint32 width 4 default, got %+v", spec)
	}
}

func TestResolveFieldBareIntegerDefaultLengthForm(t *testing.T) {
	dict := testDictionary(t)
	spec, err := resolveField(logr.Discard(), rawField{FieldType: 1, WireLength: 0, IsScope: true}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindUint32 || spec.Length != 4 || spec.Name != "system" {
		t.Fatalf("expected scope field 'system' resolved to uint32/4, got %+v", spec)
	}
}

func TestResolveFieldAddressAtomsPassThrough(t *testing.T) {
	dict := testDictionary(t)
	spec, err := resolveField(logr.Discard(), rawField{FieldType: 8, WireLength: 4}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindIPv4Addr {
		t.Fatalf("expected ipv4_addr kind, got %+v", spec)
	}

	spec, err = resolveField(logr.Discard(), rawField{FieldType: 56, WireLength: 6}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindMacAddr {
		t.Fatalf("expected mac_addr kind, got %+v", spec)
	}
}

func TestResolveFieldApplicationID(t *testing.T) {
	dict := testDictionary(t)
	spec, err := resolveField(logr.Discard(), rawField{FieldType: 95, WireLength: 5}, dict, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != KindApplicationID || spec.Length != 5 {
		t.Fatalf("expected application_id length 5, got %+v", spec)
	}
}

func TestResolveFieldIPFIXEnterpriseScoped(t *testing.T) {
	dict := testDictionary(t)
	spec, err := resolveField(logr.Discard(), rawField{EnterpriseID: 40982, FieldType: 1, WireLength: 4}, dict, true)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "custom_metric" || spec.Kind != KindUint32 {
		t.Fatalf("expected custom_metric uint32, got %+v", spec)
	}

	if _, err := resolveField(logr.Discard(), rawField{EnterpriseID: 99999, FieldType: 1, WireLength: 4}, dict, true); err == nil {
		t.Fatal("expected unknown enterprise to be rejected")
	}
}
