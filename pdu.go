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
	"encoding/binary"
	"fmt"
)

// flowsetHeader is the common {id, length} prefix shared by every NetFlow v9
// and IPFIX flowset/set, per §6 "Wire formats".
type flowsetHeader struct {
	ID     uint16
	Length uint16
}

func readFlowsetHeader(r *bytes.Reader) (flowsetHeader, error) {
	var h flowsetHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return flowsetHeader{}, fmt.Errorf("%w: flowset header: %v", ErrTruncatedPDU, err)
	}
	if h.Length < 4 {
		return flowsetHeader{}, fmt.Errorf("%w: flowset length %d shorter than header", ErrMalformedHeader, h.Length)
	}
	return h, nil
}

// v9Header is the 20-byte NetFlow v9 PDU header (§4.D). RFC 3954 gives it
// six fields and no sub-second component; unlike IPFIX's flow sets, v9 data
// carries no nanosecond timestamp anywhere in the header.
type v9Header struct {
	Version  uint16
	Count    uint16
	UptimeMs uint32
	UnixSec  uint32
	Seq      uint32
	SourceID uint32
}

func readV9Header(r *bytes.Reader) (v9Header, error) {
	var h v9Header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return v9Header{}, fmt.Errorf("%w: netflow v9 header: %v", ErrTruncatedPDU, err)
	}
	return h, nil
}

// ipfixHeader is the 16-byte IPFIX PDU header (§4.D).
type ipfixHeader struct {
	Version             uint16
	Length              uint16
	UnixSec             uint32
	Seq                 uint32
	ObservationDomainID uint32
}

func readIPFIXHeader(r *bytes.Reader) (ipfixHeader, error) {
	var h ipfixHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return ipfixHeader{}, fmt.Errorf("%w: ipfix header: %v", ErrTruncatedPDU, err)
	}
	return h, nil
}

const (
	v9FlowsetTemplate        = 0
	v9FlowsetOptionsTemplate = 1

	ipfixFlowsetTemplate        = 2
	ipfixFlowsetOptionsTemplate = 3
)
