package vpn

import (
	"fmt"
	"net/url"

	"redweb-bot/internal/config"
)

// UserPrefix starts every access label this bot provisions; the online-users
// counter keys on it to tell our clients from ones created by hand.
const UserPrefix = "user_"

// Profile is the persisted identity of a provisioned panel client. It is
// serialized as-is into the subscriber record.
type Profile struct {
	ClientID string `json:"client_id"`
	Email    string `json:"email"`
	Port     int    `json:"port"`
	Security string `json:"security"`
	Remark   string `json:"remark"`
}

// AccessURL renders the shareable vless Reality connection string. The
// template is fixed; only its parameters come from configuration.
func AccessURL(cfg *config.Config, p *Profile) string {
	return fmt.Sprintf(
		"vless://%s@%s:%d?type=tcp&security=reality&pbk=%s&fp=%s&sni=%s&sid=%s&spx=%%2F#%s-%s",
		p.ClientID,
		cfg.XUIHost,
		p.Port,
		url.QueryEscape(cfg.RealityPublicKey),
		url.QueryEscape(cfg.RealityFingerprint),
		url.QueryEscape(cfg.FirstSNI()),
		url.QueryEscape(cfg.FirstShortID()),
		p.Remark,
		p.Email,
	)
}
