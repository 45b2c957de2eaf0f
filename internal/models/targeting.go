package models

// TargetingContext holds information derived from a bid request that line
// items are matched against. It is resolved once per request from the device
// User-Agent, the IP address and the exchange-supplied key-values.
type TargetingContext struct {
	DeviceType string // Device type ("mobile", "desktop", "tablet", "other"). Derived from User-Agent.
	OS         string // Operating system name and version. Derived from User-Agent.
	Browser    string // Browser name and version. Derived from User-Agent.
	IsBot      bool   // True if the User-Agent is a known bot or crawler.
	Country    string // ISO 3166-1 alpha-2 country code derived from the IP address.
	Region     string // Region or subdivision code derived from the IP address.
	// KeyValues are the free-form key-values forwarded in the request extension.
	KeyValues map[string]string
}
