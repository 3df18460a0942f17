package netflow

import (
	"time"

	"github.com/flowforge/netflow/iana/version"
)

// Options configures a Decoder. The zero value is not directly usable;
// DefaultOptions returns sane defaults that NewDecoder merges caller overrides
// into, mirroring the teacher's DecoderOptions.Merge pattern (decode.go).
type Options struct {
	// SwitchedTimesFromUptime, when true, leaves first_switched/last_switched
	// as raw boot-relative integers instead of converting them to ISO-8601.
	SwitchedTimesFromUptime bool

	// CacheTTL is how long templates and sampler entries live without being
	// re-registered before they expire. Default 4000 seconds per §6.
	CacheTTL time.Duration

	// Versions restricts which protocol versions Decode will accept. A
	// datagram naming a version not in this set is dropped with a warning,
	// exactly as an unsupported version would be.
	Versions map[version.ProtocolVersion]bool

	// CacheSavePath is a directory for the IPFIX template cache file (named
	// templateCacheFileName inside it). Empty disables persistence.
	// Persistence applies to IPFIX templates only.
	CacheSavePath string

	// IncludeFlowsetID, when true, adds flowset_id to each NetFlow v9 and
	// IPFIX event.
	IncludeFlowsetID bool
}

// templateCacheFileName is the name of the IPFIX template cache file written
// inside Options.CacheSavePath.
const templateCacheFileName = "ipfix_templates.cache"

// DefaultOptions returns the default configuration described in §6.
func DefaultOptions() Options {
	return Options{
		SwitchedTimesFromUptime: false,
		CacheTTL:                4000 * time.Second,
		Versions: map[version.ProtocolVersion]bool{
			version.NetFlowV5: true,
			version.NetFlowV9: true,
			version.IPFIX:     true,
		},
		CacheSavePath:    "",
		IncludeFlowsetID: false,
	}
}

// Merge overlays non-zero fields of each opt onto o, in order. A nil
// Versions map in opt is treated as "unset" and does not clear o.Versions.
func (o *Options) Merge(opts ...Options) {
	for _, opt := range opts {
		o.SwitchedTimesFromUptime = o.SwitchedTimesFromUptime || opt.SwitchedTimesFromUptime
		if opt.CacheTTL != 0 {
			o.CacheTTL = opt.CacheTTL
		}
		if opt.Versions != nil {
			o.Versions = opt.Versions
		}
		if opt.CacheSavePath != "" {
			o.CacheSavePath = opt.CacheSavePath
		}
		o.IncludeFlowsetID = o.IncludeFlowsetID || opt.IncludeFlowsetID
	}
}

func (o *Options) versionAllowed(v version.ProtocolVersion) bool {
	if o.Versions == nil {
		return true
	}
	return o.Versions[v]
}
