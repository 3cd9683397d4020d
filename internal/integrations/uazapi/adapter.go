// Package uazapi adapts a self-hosted WhatsApp automation server whose
// session-management routes vary between deployments. Routes are
// discovered by probing; messaging routes are fixed.
package uazapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wagateway/internal/integrations"
	"wagateway/internal/integrations/probe"
	"wagateway/internal/model"
)

const Name = "uazapi"

// Adapter implements every capability in integrations.
type Adapter struct {
	client   *probe.Client
	resolver *probe.Resolver
	routes   Routes
	log      *slog.Logger
}

// Options configures New.
type Options struct {
	BaseURL        string
	Keys           integrations.Keyring
	Routes         Routes
	HTTP           *http.Client
	AttemptTimeout time.Duration
	Deadline       time.Duration
	Logger         *slog.Logger
	Observer       probe.Observer
	Limiter        *rate.Limiter
}

func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("uazapi: base url not configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keys := opts.Keys
	client := &probe.Client{
		BaseURL: strings.TrimRight(opts.BaseURL, "/"),
		HTTP:    opts.HTTP,
		Keys:    keys,
		Limiter: opts.Limiter,
		AuthHeaders: func(h http.Header, bearer string, admin bool) {
			h.Set("token", bearer)
			if admin && keys.Admin != "" {
				h.Set("admintoken", keys.Admin)
				h.Set("Authorization", "Bearer "+keys.Admin)
				return
			}
			h.Set("Authorization", "Bearer "+bearer)
		},
	}
	return &Adapter{
		client: client,
		resolver: &probe.Resolver{
			Client:         client,
			AttemptTimeout: opts.AttemptTimeout,
			Deadline:       opts.Deadline,
			Logger:         logger.With("provider", Name),
			Observer:       opts.Observer,
		},
		routes: opts.Routes,
		log:    logger.With("provider", Name),
	}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) SendText(ctx context.Context, auth integrations.CallAuth, msg model.TextMessage) (integrations.Payload, error) {
	body := map[string]any{"number": model.DigitsOnly(msg.Phone), "text": msg.Text}
	p, _, err := a.client.Do(ctx, probe.Call{Method: http.MethodPost, Path: "/send/text", Body: body, Auth: auth})
	return p, err
}

type carouselButton struct {
	Text string `json:"text"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

type carouselCard struct {
	Text    string           `json:"text"`
	Image   string           `json:"image,omitempty"`
	Buttons []carouselButton `json:"buttons"`
}

func (a *Adapter) SendCarousel(ctx context.Context, auth integrations.CallAuth, msg model.CarouselMessage) (integrations.Payload, error) {
	cards := make([]carouselCard, 0, len(msg.Cards))
	for _, c := range msg.Cards {
		card := carouselCard{Text: c.Text, Image: c.Media, Buttons: []carouselButton{}}
		for _, b := range c.Buttons {
			card.Buttons = append(card.Buttons, carouselButton{Text: b.Text, Type: b.Kind(), ID: b.ButtonID()})
		}
		cards = append(cards, card)
	}
	body := map[string]any{
		"number":   model.DigitsOnly(msg.Phone),
		"text":     msg.Text,
		"carousel": cards,
		"delay":    msg.DelaySeconds * 1000,
		"readchat": true,
	}
	p, _, err := a.client.Do(ctx, probe.Call{Method: http.MethodPost, Path: "/send/carousel", Body: body, Auth: auth})
	return p, err
}

// ConfigureWebhook has no documented vendor route; it reports the URL the
// operator must register.
func (a *Adapter) ConfigureWebhook(ctx context.Context, auth integrations.CallAuth, url string) (integrations.Payload, error) {
	return integrations.Payload{
		"webhookUrl":       url,
		"providerResponse": map[string]any{"note": "register this url in the uazapi panel"},
	}, nil
}

func (a *Adapter) CreateSession(ctx context.Context, session string, auth integrations.CallAuth) (integrations.Payload, error) {
	res, err := a.resolver.Resolve(ctx, "create", a.routes.createCandidates(), probe.Request{Session: session, Auth: auth})
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", session, err)
	}
	a.log.Info("session created", "session", session, "path", res.Candidate.Path, "attempts", len(res.Attempts))
	return res.Payload, nil
}

// ConnectSession returns the current status when the session is already
// connected, otherwise asks the vendor to start pairing.
func (a *Adapter) ConnectSession(ctx context.Context, session string, auth integrations.CallAuth, phone string) (integrations.Payload, error) {
	if st, _, err := a.client.Do(ctx, probe.Call{Method: http.MethodGet, Path: "/instance/status", Auth: auth}); err == nil {
		if integrations.ReadStatus(st).Connected {
			return st, nil
		}
	} else if errors.Is(err, integrations.ErrCredentialsMissing) {
		return nil, err
	}
	body := map[string]any{}
	if d := model.DigitsOnly(phone); d != "" {
		body["phone"] = d
	}
	p, _, err := a.client.Do(ctx, probe.Call{Method: http.MethodPost, Path: "/instance/connect", Body: body, Auth: auth})
	if err != nil {
		return nil, fmt.Errorf("connect session %s: %w", session, err)
	}
	return p, nil
}

func (a *Adapter) DisconnectSession(ctx context.Context, session string, auth integrations.CallAuth) (integrations.Payload, error) {
	res, err := a.resolver.Resolve(ctx, "disconnect", a.routes.disconnectCandidates(), probe.Request{
		Session: session,
		Auth:    auth,
		Extra:   map[string]string{"action": "logout"},
	})
	if err != nil {
		return nil, fmt.Errorf("disconnect session %s: %w", session, err)
	}
	a.log.Info("session disconnected", "session", session, "path", res.Candidate.Path, "attempts", len(res.Attempts))
	return res.Payload, nil
}

func (a *Adapter) GetSessionStatus(ctx context.Context, session string, auth integrations.CallAuth) (integrations.Payload, error) {
	p, _, err := a.client.Do(ctx, probe.Call{Method: http.MethodGet, Path: "/instance/status", Auth: auth})
	if err != nil {
		return nil, fmt.Errorf("status %s: %w", session, err)
	}
	return p, nil
}

func (a *Adapter) GetQRCode(ctx context.Context, session string, auth integrations.CallAuth, force bool) (integrations.Payload, error) {
	req := probe.Request{Session: session, Auth: auth}
	if force || a.routes.QRForce {
		req.Extra = map[string]string{"force": "true"}
	}
	res, err := a.resolver.Resolve(ctx, "qr", a.routes.qrCandidates(session), req)
	if err != nil {
		return nil, fmt.Errorf("qr code %s: %w", session, err)
	}
	return res.Payload, nil
}

// ResolveSessionToken scans session listings, then single-session routes.
func (a *Adapter) ResolveSessionToken(ctx context.Context, session string) (string, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return "", integrations.ErrNotFound
	}
	var token string
	_, err := a.resolver.Resolve(ctx, "token_list", a.routes.tokenListCandidates(), probe.Request{
		Accept: func(p integrations.Payload) bool {
			token = integrations.FindSessionToken(p, session)
			return token != ""
		},
	})
	if err == nil {
		return token, nil
	}
	if fatal(err) {
		return "", err
	}
	_, err = a.resolver.Resolve(ctx, "token_detail", a.routes.tokenDetailCandidates(), probe.Request{
		Session: session,
		Accept: func(p integrations.Payload) bool {
			token = integrations.ItemToken(p)
			return token != ""
		},
	})
	if err == nil {
		return token, nil
	}
	if fatal(err) {
		return "", err
	}
	return "", fmt.Errorf("session token %s: %w", session, integrations.ErrNotFound)
}

// fatal reports a lookup that never got an answer from the vendor, as
// opposed to one where no answer listed the session.
func fatal(err error) bool {
	var ex *probe.ExhaustedError
	if !errors.As(err, &ex) {
		return true
	}
	for _, at := range ex.Attempts {
		if at.Outcome != "unreachable" && at.Outcome != "no_credentials" {
			return false
		}
	}
	return errors.Is(err, integrations.ErrCredentialsMissing) || errors.Is(err, integrations.ErrVendorUnreachable)
}
