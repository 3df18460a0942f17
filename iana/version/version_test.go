package version

import "testing"

func TestVersionString(t *testing.T) {
	cases := []struct {
		v    ProtocolVersion
		want string
	}{
		{NetFlowV5, "NetFlowV5"},
		{NetFlowV9, "NetFlowV9"},
		{IPFIX, "IPFIX"},
		{ProtocolVersion(0), "Unknown"},
		{ProtocolVersion(4), "Unknown"},
		{ProtocolVersion(1), "Unknown"},
	}
	for _, c := range cases {
		if s := c.v.String(); s != c.want {
			t.Fatalf("version %d: expected %s, found %s", c.v, c.want, s)
		}
	}
}

func TestSupported(t *testing.T) {
	for _, v := range []ProtocolVersion{NetFlowV5, NetFlowV9, IPFIX} {
		if !v.Supported() {
			t.Fatalf("expected %s to be supported", v)
		}
	}
	if ProtocolVersion(7).Supported() {
		t.Fatal("expected version 7 to be unsupported")
	}
}

func TestMarshalText(t *testing.T) {
	ipfixLit := IPFIX
	if _, err := ipfixLit.MarshalText(); err != nil {
		t.Fatal(err)
	}

	unknown := ProtocolVersion(0)
	if _, err := unknown.MarshalText(); err == nil {
		t.Fatal(err)
	}
}

func TestUnmarshalText(t *testing.T) {
	p := ProtocolVersion(0)

	if err := p.UnmarshalText([]byte("IPFIX")); err != nil {
		t.Fatal(err)
	}
	if p != IPFIX {
		t.Fatalf("expected IPFIX, got %s", p)
	}

	if err := p.UnmarshalText([]byte("NetFlowV9")); err != nil {
		t.Fatal(err)
	}
	if p != NetFlowV9 {
		t.Fatalf("expected NetFlowV9, got %s", p)
	}

	if err := p.UnmarshalText([]byte("unknown")); err == nil {
		t.Fatal("expected error for unknown version literal")
	}
}
