package config

import "strings"

// PortalConfig holds the labels shown on the landing page.
type PortalConfig struct {
	Title string `env:"PORTAL_TITLE" envDefault:"Meraki Captive Portal for Azure Active Directory"`
	SSID  string `env:"SSID"         envDefault:"WiFi"`
}

// Sanitize trims labels.
func (p *PortalConfig) Sanitize() {
	p.Title = strings.TrimSpace(p.Title)
	p.SSID = strings.TrimSpace(p.SSID)
}
