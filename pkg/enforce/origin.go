package enforce

import (
	"net/netip"
	"strings"

	"github.com/rzbill/gate/pkg/log"
)

// originAllowed checks a request origin against a project's allow list.
// An empty allow list means no restriction. Entries are matched exactly,
// except "*" (allow all) and CIDR ranges, which are parsed and matched
// against the origin as an IP address.
//
// Policy decision: CIDR handling is fail-closed. A malformed CIDR entry
// never matches, and an origin that is not an IP can only be admitted by
// an exact entry.
func originAllowed(allowed []string, origin string, logger log.Logger) bool {
	if len(allowed) == 0 {
		return true
	}

	addr, addrErr := netip.ParseAddr(origin)

	for _, entry := range allowed {
		if entry == "*" {
			return true
		}
		if entry == origin {
			return true
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("malformed CIDR in origin allow list, treating as non-matching",
					log.Str("entry", entry))
				continue
			}
			if addrErr == nil && prefix.Contains(addr) {
				return true
			}
		}
	}

	return false
}
