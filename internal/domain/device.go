package domain

// DeviceInfo is metadata reported by a connected device daemon.
type DeviceInfo struct {
	Kind    string            `json:"kind"` // "device", "host" or "bootloader"
	Model   string            `json:"model,omitempty"`
	Product string            `json:"product,omitempty"`
	Banner  string            `json:"-"`
	Props   map[string]string `json:"-"`
}
