// Package zapi adapts the hosted Z-API service. It can only send messages
// and configure webhooks; sessions are managed in the vendor's console.
package zapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"wagateway/internal/integrations"
	"wagateway/internal/integrations/probe"
	"wagateway/internal/model"
)

const (
	Name           = "zapi"
	DefaultBaseURL = "https://api.z-api.io"
)

type Options struct {
	BaseURL     string
	InstanceID  string
	Token       string
	ClientToken string
	HTTP        *http.Client
	Limiter     *rate.Limiter
}

type Adapter struct {
	client *probe.Client
}

func New(opts Options) (*Adapter, error) {
	var missing []string
	if opts.InstanceID == "" {
		missing = append(missing, "ZAPI_INSTANCE_ID")
	}
	if opts.Token == "" {
		missing = append(missing, "ZAPI_TOKEN")
	}
	if opts.ClientToken == "" {
		missing = append(missing, "ZAPI_CLIENT_TOKEN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("zapi: %w: %s", integrations.ErrCredentialsMissing, strings.Join(missing, ", "))
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	clientToken := opts.ClientToken
	// Credentials live in the URL; the keyring only has to yield something.
	return &Adapter{client: &probe.Client{
		BaseURL: strings.TrimRight(base, "/") + "/instances/" + opts.InstanceID + "/token/" + opts.Token,
		HTTP:    opts.HTTP,
		Keys:    integrations.Keyring{Global: opts.Token},
		Limiter: opts.Limiter,
		AuthHeaders: func(h http.Header, _ string, _ bool) {
			h.Set("Client-Token", clientToken)
		},
	}}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) SendText(ctx context.Context, _ integrations.CallAuth, msg model.TextMessage) (integrations.Payload, error) {
	body := map[string]any{"phone": model.DigitsOnly(msg.Phone), "message": msg.Text}
	p, _, err := a.client.Do(ctx, probe.Call{Method: http.MethodPost, Path: "/send-text", Body: body})
	return p, err
}

func (a *Adapter) SendCarousel(ctx context.Context, _ integrations.CallAuth, msg model.CarouselMessage) (integrations.Payload, error) {
	if len(msg.Cards) == 0 {
		return nil, errors.New("zapi: carousel needs at least one card")
	}
	body := map[string]any{"phone": model.DigitsOnly(msg.Phone), "elements": msg.Cards}
	if msg.Text != "" {
		body["message"] = msg.Text
	}
	if msg.DelaySeconds > 0 {
		body["delayMessage"] = msg.DelaySeconds
	}
	p, _, err := a.client.Do(ctx, probe.Call{Method: http.MethodPost, Path: "/send-carousel", Body: body})
	return p, err
}

func (a *Adapter) ConfigureWebhook(ctx context.Context, _ integrations.CallAuth, url string) (integrations.Payload, error) {
	body := map[string]any{"value": url, "notifySentByMe": true}
	p, _, err := a.client.Do(ctx, probe.Call{Method: http.MethodPut, Path: "/update-every-webhooks", Body: body})
	if err != nil {
		return nil, err
	}
	return integrations.Payload{"webhookUrl": url, "providerResponse": map[string]any(p)}, nil
}
