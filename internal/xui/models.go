package xui

// Inbound is the panel-side listener document. The panel has no per-client
// mutation endpoint: every change round-trips the whole document, so all
// fields must survive a GET/update cycle untouched.
type Inbound struct {
	ID             int    `json:"id,omitempty"`
	Up             int64  `json:"up"`
	Down           int64  `json:"down"`
	Total          int64  `json:"total"`
	Remark         string `json:"remark"`
	Enable         bool   `json:"enable"`
	ExpiryTime     int64  `json:"expiryTime"`
	Listen         string `json:"listen"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Settings       string `json:"settings"`       // nested JSON document, see InboundClient
	StreamSettings string `json:"streamSettings"` // nested JSON, opaque here
	Sniffing       string `json:"sniffing"`       // nested JSON, opaque here
}

// InboundClient is one credential entry inside the inbound's settings document.
type InboundClient struct {
	ID          string `json:"id"`
	Flow        string `json:"flow"`
	Email       string `json:"email"`
	LimitIP     int    `json:"limitIp"`
	TotalGB     int64  `json:"totalGB"`
	ExpiryTime  int64  `json:"expiryTime"` // milliseconds since epoch, 0 = never
	Enable      bool   `json:"enable"`
	TgID        string `json:"tgId"`
	SubID       string `json:"subId"`
	Reset       int    `json:"reset"`
	Fingerprint string `json:"fingerprint,omitempty"`
	PublicKey   string `json:"publicKey,omitempty"`
	ShortID     string `json:"shortId,omitempty"`
	SpiderX     string `json:"spiderX,omitempty"`
}

// ClientTraffic is the per-client counter record from getClientTraffics.
type ClientTraffic struct {
	Email string `json:"email"`
	Up    int64  `json:"up"`
	Down  int64  `json:"down"`
}
