// Package version defines the wire protocol version numbers carried in the
// first two bytes of every NetFlow/IPFIX datagram header.
package version

import (
	"errors"
)

type ProtocolVersion uint16

var (
	ErrUnknownProtocolVersion = errors.New("unknown protocol version")
)

const (
	Unknown ProtocolVersion = 0

	NetFlowV5 ProtocolVersion = 5
	NetFlowV9 ProtocolVersion = 9
	IPFIX     ProtocolVersion = 10
)

func (p ProtocolVersion) String() string {
	switch p {
	case NetFlowV5:
		return "NetFlowV5"
	case NetFlowV9:
		return "NetFlowV9"
	case IPFIX:
		return "IPFIX"
	default:
		return "Unknown"
	}
}

// Supported reports whether p is one of the three protocol versions this
// module knows how to decode.
func (p ProtocolVersion) Supported() bool {
	switch p {
	case NetFlowV5, NetFlowV9, IPFIX:
		return true
	default:
		return false
	}
}

func (p ProtocolVersion) MarshalText() ([]byte, error) {
	s := p.String()
	if s == "Unknown" {
		return nil, ErrUnknownProtocolVersion
	}
	return []byte(s), nil
}

func (p *ProtocolVersion) UnmarshalText(in []byte) error {
	switch string(in) {
	case "NetFlowV5", "netflowv5", "5":
		*p = NetFlowV5
	case "NetFlowV9", "netflowv9", "9":
		*p = NetFlowV9
	case "IPFIX", "ipfix", "10":
		*p = IPFIX
	default:
		return ErrUnknownProtocolVersion
	}
	return nil
}
