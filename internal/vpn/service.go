package vpn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"redweb-bot/internal/config"
	"redweb-bot/internal/xui"

	"github.com/google/uuid"
)

var ErrProvision = errors.New("vpn: provisioning failed")

// New profiles get a short grace window; the purchase flow extends it once
// payment clears.
const profileGracePeriod = 3 * 24 * time.Hour

// Service owns assembly and teardown of panel clients for subscribers. Every
// operation opens a fresh authenticated panel session and closes it on all
// paths; the panel's session TTL is unknown, so nothing is reused across
// calls.
type Service struct {
	cfg *config.Config
}

func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// Stats holds per-subscriber traffic counters in bytes. Zero values mean
// "no data", not an error.
type Stats struct {
	Upload   int64
	Download int64
}

func (s *Service) open(ctx context.Context) (*xui.Client, error) {
	client := xui.NewClient(s.cfg.PanelBaseURL(), s.cfg.XUIUsername, s.cfg.XUIPassword)
	if err := client.Login(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// CreateProfile provisions a fresh panel client for the subscriber and
// returns its identifying fields. Nothing is persisted on failure: the
// inbound document is only pushed back once the new entry is spliced in.
func (s *Service) CreateProfile(ctx context.Context, telegramID int64) (*Profile, error) {
	client, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	inbound, err := client.GetInbound(ctx, s.cfg.InboundID)
	if err != nil {
		return nil, fmt.Errorf("%w: inbound %d unavailable: %v", ErrProvision, s.cfg.InboundID, err)
	}

	doc, clients, err := decodeClients(inbound.Settings)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed inbound settings: %v", ErrProvision, err)
	}

	entry := xui.InboundClient{
		ID:          uuid.New().String(),
		Email:       fmt.Sprintf("%s%d_%d", UserPrefix, telegramID, 1000+rand.IntN(9000)),
		ExpiryTime:  time.Now().Add(profileGracePeriod).UnixMilli(),
		Enable:      true,
		TgID:        strconv.FormatInt(telegramID, 10),
		Fingerprint: s.cfg.RealityFingerprint,
		PublicKey:   s.cfg.RealityPublicKey,
		ShortID:     s.cfg.FirstShortID(),
		SpiderX:     s.cfg.RealitySpiderX,
	}
	clients = append(clients, entry)

	inbound.Settings, err = encodeClients(doc, clients)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding settings: %v", ErrProvision, err)
	}

	if err := client.UpdateInbound(ctx, s.cfg.InboundID, inbound); err != nil {
		return nil, fmt.Errorf("%w: inbound update rejected: %v", ErrProvision, err)
	}

	return &Profile{
		ClientID: entry.ID,
		Email:    entry.Email,
		Port:     inbound.Port,
		Security: "reality",
		Remark:   inbound.Remark,
	}, nil
}

// DeleteClient removes the client with the given access label from the
// inbound. Removing a label that is already gone is a no-op success.
func (s *Service) DeleteClient(ctx context.Context, email string) error {
	client, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	inbound, err := client.GetInbound(ctx, s.cfg.InboundID)
	if err != nil {
		return fmt.Errorf("%w: inbound %d unavailable: %v", ErrProvision, s.cfg.InboundID, err)
	}

	doc, clients, err := decodeClients(inbound.Settings)
	if err != nil {
		return fmt.Errorf("%w: malformed inbound settings: %v", ErrProvision, err)
	}

	kept := clients[:0]
	for _, c := range clients {
		if c.Email != email {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(clients) {
		return nil
	}

	inbound.Settings, err = encodeClients(doc, kept)
	if err != nil {
		return fmt.Errorf("%w: encoding settings: %v", ErrProvision, err)
	}

	if err := client.UpdateInbound(ctx, s.cfg.InboundID, inbound); err != nil {
		return fmt.Errorf("%w: inbound update rejected: %v", ErrProvision, err)
	}
	return nil
}

// ExtendClient moves the panel-side expiry of an access label to the given
// time. The purchase flow calls this after payment clears, replacing the
// short grace window a fresh profile starts with.
func (s *Service) ExtendClient(ctx context.Context, email string, until time.Time) error {
	client, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	inbound, err := client.GetInbound(ctx, s.cfg.InboundID)
	if err != nil {
		return fmt.Errorf("%w: inbound %d unavailable: %v", ErrProvision, s.cfg.InboundID, err)
	}

	doc, clients, err := decodeClients(inbound.Settings)
	if err != nil {
		return fmt.Errorf("%w: malformed inbound settings: %v", ErrProvision, err)
	}

	found := false
	for i := range clients {
		if clients[i].Email == email {
			clients[i].ExpiryTime = until.UnixMilli()
			clients[i].Enable = true
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: client %s not in inbound", ErrProvision, email)
	}

	inbound.Settings, err = encodeClients(doc, clients)
	if err != nil {
		return fmt.Errorf("%w: encoding settings: %v", ErrProvision, err)
	}

	if err := client.UpdateInbound(ctx, s.cfg.InboundID, inbound); err != nil {
		return fmt.Errorf("%w: inbound update rejected: %v", ErrProvision, err)
	}
	return nil
}

// UserStats queries traffic counters for one access label. Any failure
// degrades to zeroed counters: the numbers feed display paths only, and an
// unknown label is indistinguishable from one that never passed traffic.
func (s *Service) UserStats(ctx context.Context, email string) Stats {
	client, err := s.open(ctx)
	if err != nil {
		log.Printf("Stats lookup for %s skipped: %v", email, err)
		return Stats{}
	}
	defer client.Close()

	traffic, err := client.ClientTraffics(ctx, email)
	if err != nil {
		if !errors.Is(err, xui.ErrNotFound) {
			log.Printf("Stats lookup for %s failed: %v", email, err)
		}
		return Stats{}
	}
	return Stats{Upload: traffic.Up, Download: traffic.Down}
}

// OnlineUsers counts currently connected clients provisioned by this bot.
// Returns 0 on any failure.
func (s *Service) OnlineUsers(ctx context.Context) int {
	client, err := s.open(ctx)
	if err != nil {
		log.Printf("Online users lookup skipped: %v", err)
		return 0
	}
	defer client.Close()

	emails, err := client.Onlines(ctx)
	if err != nil {
		if !errors.Is(err, xui.ErrNotFound) {
			log.Printf("Online users lookup failed: %v", err)
		}
		return 0
	}

	count := 0
	for _, email := range emails {
		if strings.Contains(email, UserPrefix) {
			count++
		}
	}
	return count
}

// The settings document carries keys beyond the client list (decryption,
// fallbacks); they are kept as raw JSON so a round trip only touches
// "clients".
func decodeClients(settings string) (map[string]json.RawMessage, []xui.InboundClient, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(settings), &doc); err != nil {
		return nil, nil, err
	}

	var clients []xui.InboundClient
	if raw, ok := doc["clients"]; ok {
		if err := json.Unmarshal(raw, &clients); err != nil {
			return nil, nil, err
		}
	}
	return doc, clients, nil
}

func encodeClients(doc map[string]json.RawMessage, clients []xui.InboundClient) (string, error) {
	raw, err := json.Marshal(clients)
	if err != nil {
		return "", err
	}
	doc["clients"] = raw

	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
