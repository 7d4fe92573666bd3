package adb

import (
	"strings"

	"droidview/internal/domain"
)

// parseBanner extracts device metadata from a CNXN payload, e.g.
// "device::ro.product.name=sdk;ro.product.model=Pixel 7;features=...".
func parseBanner(payload []byte) domain.DeviceInfo {
	banner := strings.TrimRight(string(payload), "\x00")
	info := domain.DeviceInfo{Banner: banner, Props: make(map[string]string)}

	kind, rest, _ := strings.Cut(banner, ":")
	info.Kind = kind
	rest = strings.TrimPrefix(rest, ":")

	for _, kv := range strings.Split(rest, ";") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		info.Props[k] = v
	}
	info.Model = info.Props["ro.product.model"]
	info.Product = info.Props["ro.product.name"]
	return info
}
