package tlsaudit

import (
	"crypto/tls"
	"strings"
)

type versionRange struct {
	min uint16
	max uint16
}

// protocols maps secure protocol names to the TLS versions they allow.
// "TLS" means any version Go still considers safe.
var protocols = map[string]versionRange{
	"tls":     {tls.VersionTLS12, tls.VersionTLS13},
	"tlsv1":   {tls.VersionTLS10, tls.VersionTLS10},
	"tlsv1.0": {tls.VersionTLS10, tls.VersionTLS10},
	"tlsv1.1": {tls.VersionTLS11, tls.VersionTLS11},
	"tlsv1.2": {tls.VersionTLS12, tls.VersionTLS12},
	"tlsv1.3": {tls.VersionTLS13, tls.VersionTLS13},
}

func lookupProtocol(name string) (versionRange, bool) {
	vr, ok := protocols[strings.ToLower(strings.TrimSpace(name))]
	return vr, ok
}

// IsKnownProtocol reports whether name can be passed to NewLayer
func IsKnownProtocol(name string) bool {
	_, ok := lookupProtocol(name)
	return ok
}
