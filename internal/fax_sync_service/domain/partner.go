package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type ProviderType string

const (
	ProviderSRFax       ProviderType = "SRFAX"
	ProviderRingCentral ProviderType = "RING_CENTRAL"
	ProviderUniteFax    ProviderType = "UNITE_FAX"
	ProviderOther       ProviderType = "OTHER"
)

func (p ProviderType) FaxIDPrefix() string {
	switch p {
	case ProviderSRFax:
		return "SRFAX_"
	case ProviderRingCentral:
		return "RINGCENTRAL_"
	case ProviderUniteFax:
		return "UNITE_"
	}
	return string(p) + "_"
}

// OutgoingFaxType is the partner-level pointer to the config used for outbound faxes.
type OutgoingFaxType string

const (
	OutgoingFaxTypeSRFax       OutgoingFaxType = "SR_FAX"
	OutgoingFaxTypeRingCentral OutgoingFaxType = "RING_CENTRAL"
	OutgoingFaxTypeUniteFax    OutgoingFaxType = "UNITE_FAX"
)

// ProviderConfig is one credential set a partner holds with a fax provider.
type ProviderConfig interface {
	Provider() ProviderType
	ConfigID() int64
	// CheckComplete returns ErrConfigIncomplete when a required credential is missing.
	CheckComplete() error
	// PullEnabled reports whether inbound polling is switched on for this config.
	PullEnabled() bool
}

type SrFaxConfig struct {
	ID            int64  `json:"id"`
	Number        string `json:"number"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	AccountNumber string `json:"accountNumber"`
	PullFax       bool   `json:"pullFax"`
	IsActive      bool   `json:"isActive"`
}

func (c *SrFaxConfig) Provider() ProviderType { return ProviderSRFax }
func (c *SrFaxConfig) ConfigID() int64        { return c.ID }
func (c *SrFaxConfig) PullEnabled() bool      { return c.IsActive && c.PullFax }

func (c *SrFaxConfig) CheckComplete() error {
	return requireFields(ProviderSRFax, c.ID, map[string]string{
		"accountNumber": c.AccountNumber,
		"password":      c.Password,
	})
}

type RingCentralConfig struct {
	ID           int64  `json:"id"`
	ClientID     string `json:"ringCentralClientId"`
	ClientSecret string `json:"ringCentralClientSecret"`
	Token        string `json:"ringCentralToken"`
	RefreshToken string `json:"ringCentralRefreshToken"`
	PullFax      bool   `json:"pullFax"`
	IsActive     bool   `json:"isActive"`
}

func (c *RingCentralConfig) Provider() ProviderType { return ProviderRingCentral }
func (c *RingCentralConfig) ConfigID() int64        { return c.ID }
func (c *RingCentralConfig) PullEnabled() bool      { return c.IsActive && c.PullFax }

func (c *RingCentralConfig) CheckComplete() error {
	return requireFields(ProviderRingCentral, c.ID, map[string]string{
		"ringCentralClientId":     c.ClientID,
		"ringCentralClientSecret": c.ClientSecret,
		"ringCentralRefreshToken": c.RefreshToken,
	})
}

// UsableForOutbound mirrors the routing rule: client id, token and refresh token all present.
func (c *RingCentralConfig) UsableForOutbound() bool {
	return c != nil && c.ClientID != "" && c.Token != "" && c.RefreshToken != ""
}

type UniteFaxConfig struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
	PullFax  bool   `json:"pullFax"`
	IsActive bool   `json:"isActive"`
}

func (c *UniteFaxConfig) Provider() ProviderType { return ProviderUniteFax }
func (c *UniteFaxConfig) ConfigID() int64        { return c.ID }
func (c *UniteFaxConfig) PullEnabled() bool      { return c.IsActive && c.PullFax }

func (c *UniteFaxConfig) CheckComplete() error {
	return requireFields(ProviderUniteFax, c.ID, map[string]string{
		"username": c.Username,
		"password": c.Password,
		"url":      c.URL,
	})
}

func requireFields(p ProviderType, id int64, fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: %s config %d missing %s", ErrConfigIncomplete, p, id, strings.Join(missing, ","))
}

type PartnerContact struct {
	EmailAddress string `json:"emailAddress"`
	FaxNumber    string `json:"faxNumber"`
	PhoneNumber  string `json:"phoneNumber"`
}

type PartnerFaxSettings struct {
	InboxIntegrationType string `json:"inboxIntegrationType"`
}

// Partner is the subset of partner details this service reads.
type Partner struct {
	ID                int64                `json:"id"`
	Name              string               `json:"name"`
	FullName          string               `json:"fullName"`
	Active            bool                 `json:"active"`
	Timezone          string               `json:"timezone"`
	SrFaxConfigs      []*SrFaxConfig       `json:"srFaxConfig"`
	RingCentralConfig []*RingCentralConfig `json:"ringCentralConfig"`
	UniteFaxConfigs   []*UniteFaxConfig    `json:"uniteFaxConfig"`
	OutgoingFaxID     *int64               `json:"outgoingFaxId"`
	OutgoingFaxType   OutgoingFaxType      `json:"outgoingFaxType"`
	ContactDetail     PartnerContact       `json:"contactDetail"`
	FaxConfig         PartnerFaxSettings   `json:"faxConfig"`
}

// Location returns the partner's timezone. Provider date filters are built in
// it, so a partner without a loadable zone cannot be synced.
func (p *Partner) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return nil, fmt.Errorf("%w: partner %d has no timezone", ErrConfigIncomplete, p.ID)
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: partner %d timezone %q: %v", ErrConfigIncomplete, p.ID, p.Timezone, err)
	}
	return loc, nil
}

// ProviderConfigs flattens every configured provider entry.
func (p *Partner) ProviderConfigs() []ProviderConfig {
	configs := make([]ProviderConfig, 0, len(p.SrFaxConfigs)+len(p.RingCentralConfig)+len(p.UniteFaxConfigs))
	for _, c := range p.SrFaxConfigs {
		if c != nil {
			configs = append(configs, c)
		}
	}
	for _, c := range p.RingCentralConfig {
		if c != nil {
			configs = append(configs, c)
		}
	}
	for _, c := range p.UniteFaxConfigs {
		if c != nil {
			configs = append(configs, c)
		}
	}
	return configs
}
