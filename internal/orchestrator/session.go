package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"wagateway/internal/integrations"
	"wagateway/internal/lifecycle"
	"wagateway/internal/model"
)

// SessionResult describes a tenant's session after ensure, bind or disconnect.
type SessionResult struct {
	TenantID    string               `json:"tenantId"`
	Provider    string               `json:"provider"`
	SessionName string               `json:"sessionName,omitempty"`
	Status      model.Status         `json:"status"`
	TokenSaved  bool                 `json:"tokenSaved"`
	Created     bool                 `json:"created,omitempty"`
	Manual      bool                 `json:"manual,omitempty"`
	Note        string               `json:"note,omitempty"`
	Raw         integrations.Payload `json:"raw,omitempty"`
}

func (o *Orchestrator) sessionResult(rec model.InstanceRecord) SessionResult {
	return SessionResult{
		TenantID:    rec.TenantID,
		Provider:    o.provider(),
		SessionName: rec.SessionName,
		Status:      rec.Status,
		TokenSaved:  rec.HasToken(),
	}
}

// EnsureSession makes sure tenantID has exactly one vendor session and a
// cached token for it. Concurrent calls for one tenant create at most one
// session. In manual mode it only reports the current state.
func (o *Orchestrator) EnsureSession(ctx context.Context, tenantID string) (SessionResult, error) {
	var res SessionResult
	err := o.locked(ctx, tenantID, func(s *scope) error {
		if !s.known {
			return fmt.Errorf("tenant %s: %w", tenantID, integrations.ErrNotFound)
		}
		if o.manual {
			res = o.sessionResult(s.rec)
			res.Manual = true
			res.Note = "manual instance mode: create and connect the session from the QR screen"
			return nil
		}
		if s.rec.HasSession() {
			if !s.rec.HasToken() {
				_, _ = s.token(ctx)
			}
			res = o.sessionResult(s.rec)
			return nil
		}
		raw, err := s.create(ctx)
		if err != nil {
			return err
		}
		res = o.sessionResult(s.rec)
		res.Created = true
		res.Raw = raw
		return nil
	})
	return res, err
}

// create asks the vendor for a new session named after the tenant and links it.
func (s *scope) create(ctx context.Context) (integrations.Payload, error) {
	creator, ok := s.o.adapter.(integrations.SessionCreator)
	if !ok {
		return nil, fmt.Errorf("create session: %w", integrations.ErrUnsupported)
	}
	name := model.SessionName(s.tenant.Username, s.rec.TenantID)
	raw, err := creator.CreateSession(ctx, name, integrations.CallAuth{})
	if err != nil {
		return nil, err
	}
	s.rec.SessionName = name
	fields := model.TenantSession{SessionName: &name}
	if tok := integrations.ExtractToken(raw); tok != "" {
		s.rec.SessionToken = tok
		fields.SessionToken = &tok
	}
	if err := s.transition(ctx, model.StatusCreated); err != nil {
		return nil, err
	}
	s.writeBack(ctx, fields)
	s.o.log.Info("session created", "tenant", s.rec.TenantID, "session", name, "token_saved", s.rec.HasToken())
	if !s.rec.HasToken() {
		_, _ = s.token(ctx)
	}
	return raw, nil
}

// BindSession links an existing vendor session to tenantID. Without a token
// one is looked up. Binding a different session resets the status to created.
func (o *Orchestrator) BindSession(ctx context.Context, tenantID, name, token string) (SessionResult, error) {
	name, token = strings.TrimSpace(name), strings.TrimSpace(token)
	if name == "" {
		return SessionResult{}, fmt.Errorf("%w: session name required", ErrInvalidArgument)
	}
	var res SessionResult
	err := o.locked(ctx, tenantID, func(s *scope) error {
		if !s.known {
			return fmt.Errorf("tenant %s: %w", tenantID, integrations.ErrNotFound)
		}
		if s.rec.SessionName != name {
			prev := s.rec
			s.rec.SessionName = name
			s.rec.SessionToken = ""
			s.rec.Status = model.StatusCreated
			s.rec.ConnectedAt = nil
			s.rec.LastObservedAt = s.o.clock.Now()
			s.rec.LastSource = model.SourceAPI
			if err := s.save(ctx); err != nil {
				return err
			}
			if prev.Status != model.StatusCreated {
				s.changes = append(s.changes, lifecycle.Outcome{Record: s.rec, From: prev.Status, To: model.StatusCreated, Changed: true, Write: true})
			}
		}
		if token != "" && token != s.rec.SessionToken {
			s.rec.SessionToken = token
			if err := s.save(ctx); err != nil {
				return err
			}
		}
		if !s.rec.HasToken() {
			_, _ = s.token(ctx)
		}
		fields := model.TenantSession{SessionName: &name}
		if s.rec.HasToken() {
			tok := s.rec.SessionToken
			fields.SessionToken = &tok
		}
		s.writeBack(ctx, fields)
		res = o.sessionResult(s.rec)
		return nil
	})
	return res, err
}

// Connect starts pairing for tenantID, creating the session first when the
// tenant has none. The QR code comes from the connect answer or, failing
// that, from a forced QR request.
func (o *Orchestrator) Connect(ctx context.Context, tenantID, phone string) (QRResult, error) {
	connector, canConnect := o.adapter.(integrations.SessionConnector)
	qrGetter, canQR := o.adapter.(integrations.QRCodeGetter)
	if !canConnect && !canQR {
		return QRResult{}, fmt.Errorf("connect: %w", integrations.ErrUnsupported)
	}
	phone = model.DigitsOnly(phone)

	var res QRResult
	err := o.locked(ctx, tenantID, func(s *scope) error {
		if !s.rec.HasSession() {
			if !s.known {
				return fmt.Errorf("tenant %s: %w", tenantID, integrations.ErrNotFound)
			}
			if _, err := s.create(ctx); err != nil {
				return err
			}
		}
		auth := s.auth(ctx)
		var raw integrations.Payload
		if canConnect {
			observed := o.clock.Now()
			p, err := connector.ConnectSession(ctx, s.rec.SessionName, auth, phone)
			if err != nil {
				return err
			}
			raw = p
			info := integrations.ReadStatus(p)
			if info.Reported() == model.ReportedConnected {
				if _, err := s.apply(ctx, info.Event(tenantID, model.SourceAPI, observed)); err != nil {
					return err
				}
				res = o.qrResult(s.rec, integrations.QRCode{}, p)
				res.Connected = true
				return nil
			}
			if lifecycle.CanTransition(s.rec.Status, model.StatusAwaitingQR) {
				if err := s.transition(ctx, model.StatusAwaitingQR); err != nil {
					return err
				}
			}
			if qr := integrations.ExtractQRCode(p); !qr.Empty() {
				res = o.qrResult(s.rec, qr, p)
				return nil
			}
		}
		if !canQR {
			res = o.qrResult(s.rec, integrations.QRCode{}, raw)
			res.Message = "connection started"
			return nil
		}
		p, err := qrGetter.GetQRCode(ctx, s.rec.SessionName, auth, true)
		if err != nil {
			o.log.Warn("forced qr after connect failed", "tenant", tenantID, "session", s.rec.SessionName, "err", err)
			res = o.qrResult(s.rec, integrations.QRCode{}, raw)
			res.Message = "connection started, QR not available yet"
			return nil
		}
		res = o.qrResult(s.rec, integrations.ExtractQRCode(p), p)
		if !res.QRAvailable {
			res.Message = "connection started"
		}
		return nil
	})
	return res, err
}

// Disconnect logs the tenant's session out. The cached token is kept so a
// later reconnect needs no lookup.
func (o *Orchestrator) Disconnect(ctx context.Context, tenantID string) (SessionResult, error) {
	disc, ok := o.adapter.(integrations.SessionDisconnector)
	if !ok {
		return SessionResult{}, fmt.Errorf("disconnect: %w", integrations.ErrUnsupported)
	}
	rec, auth, err := o.snapshot(ctx, tenantID)
	if err != nil {
		return SessionResult{}, err
	}
	observed := o.clock.Now()
	raw, err := disc.DisconnectSession(ctx, rec.SessionName, auth)
	if err != nil {
		return SessionResult{}, err
	}
	var res SessionResult
	err = o.locked(ctx, tenantID, func(s *scope) error {
		if s.rec.SessionName != rec.SessionName {
			return fmt.Errorf("%w: session relinked during disconnect", integrations.ErrSessionMismatch)
		}
		if err := s.transitionAt(ctx, model.StatusDisconnected, observed); err != nil {
			return err
		}
		res = o.sessionResult(s.rec)
		res.Raw = raw
		return nil
	})
	return res, err
}

// snapshot reads the linked record and its credentials inside the tenant's
// scope so the vendor call that follows can run without holding it.
func (o *Orchestrator) snapshot(ctx context.Context, tenantID string) (model.InstanceRecord, integrations.CallAuth, error) {
	var (
		rec  model.InstanceRecord
		auth integrations.CallAuth
	)
	err := o.locked(ctx, tenantID, func(s *scope) error {
		if !s.rec.HasSession() {
			return ErrNoSession
		}
		auth = s.auth(ctx)
		rec = s.rec
		return nil
	})
	return rec, auth, err
}
