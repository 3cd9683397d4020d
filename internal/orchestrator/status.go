package orchestrator

import (
	"context"
	"fmt"
	"time"

	"wagateway/internal/integrations"
	"wagateway/internal/model"
)

// StatusResult is a status reading. Stale is set when the vendor could not
// be asked and the fields come from the ledger alone.
type StatusResult struct {
	TenantID    string                  `json:"tenantId"`
	SessionName string                  `json:"sessionName"`
	Status      model.Status            `json:"status"`
	Info        integrations.StatusInfo `json:"info"`
	DeviceName  string                  `json:"deviceName,omitempty"`
	PhoneNumber string                  `json:"phoneNumber,omitempty"`
	Stale       bool                    `json:"stale,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Raw         integrations.Payload    `json:"raw,omitempty"`
}

// QRResult is the pairing material for a tenant, or the reason there is none.
type QRResult struct {
	TenantID    string               `json:"tenantId"`
	SessionName string               `json:"sessionName"`
	Status      model.Status         `json:"status"`
	Format      string               `json:"format,omitempty"`
	QR          string               `json:"qr,omitempty"`
	URL         string               `json:"url,omitempty"`
	QRAvailable bool                 `json:"qrAvailable"`
	Connected   bool                 `json:"connected"`
	Stale       bool                 `json:"stale,omitempty"`
	Message     string               `json:"message,omitempty"`
	Raw         integrations.Payload `json:"raw,omitempty"`
}

func (o *Orchestrator) qrResult(rec model.InstanceRecord, qr integrations.QRCode, raw integrations.Payload) QRResult {
	return QRResult{
		TenantID:    rec.TenantID,
		SessionName: rec.SessionName,
		Status:      rec.Status,
		Format:      qr.Format(),
		QR:          qr.Image,
		URL:         qr.URL,
		QRAvailable: !qr.Empty(),
		Connected:   rec.Status == model.StatusConnected,
		Raw:         raw,
	}
}

func statusFromRecord(rec model.InstanceRecord) StatusResult {
	return StatusResult{
		TenantID:    rec.TenantID,
		SessionName: rec.SessionName,
		Status:      rec.Status,
		Info: integrations.StatusInfo{
			Connected:   rec.Status == model.StatusConnected,
			DeviceName:  rec.DeviceName,
			PhoneNumber: rec.PhoneNumber,
			ConnectedAt: rec.ConnectedAt,
		},
		DeviceName:  rec.DeviceName,
		PhoneNumber: rec.PhoneNumber,
	}
}

// GetStatus asks the vendor for the session status and folds the answer
// into the ledger. A failed vendor call returns the stored state marked stale.
func (o *Orchestrator) GetStatus(ctx context.Context, tenantID string) (StatusResult, error) {
	return o.poll(ctx, tenantID, model.SourcePoll)
}

func (o *Orchestrator) poll(ctx context.Context, tenantID string, source model.Source) (StatusResult, error) {
	getter, ok := o.adapter.(integrations.StatusGetter)
	if !ok {
		return StatusResult{}, fmt.Errorf("status: %w", integrations.ErrUnsupported)
	}
	rec, auth, err := o.snapshot(ctx, tenantID)
	if err != nil {
		return StatusResult{}, err
	}
	observed := o.clock.Now()
	p, err := getter.GetSessionStatus(ctx, rec.SessionName, auth)
	if err != nil {
		o.log.Warn("status check failed", "tenant", tenantID, "session", rec.SessionName, "err", err)
		res := statusFromRecord(rec)
		res.Stale = true
		res.Error = err.Error()
		return res, nil
	}
	info := integrations.ReadStatus(p)
	ev := info.Event(tenantID, source, observed)
	ev.SessionHint = rec.SessionName

	var res StatusResult
	err = o.locked(ctx, tenantID, func(s *scope) error {
		if _, err := s.apply(ctx, ev); err != nil {
			return err
		}
		res = statusFromRecord(s.rec)
		res.Info = info
		res.Raw = p
		return nil
	})
	return res, err
}

// GetQRCode returns pairing material. When the vendor reports the session
// connected without a QR, the session is logged out and the QR requested
// again; if it is still connected the result says so with QRAvailable false.
func (o *Orchestrator) GetQRCode(ctx context.Context, tenantID string, force bool) (QRResult, error) {
	getter, ok := o.adapter.(integrations.QRCodeGetter)
	if !ok {
		return QRResult{}, fmt.Errorf("qr code: %w", integrations.ErrUnsupported)
	}
	rec, auth, err := o.snapshot(ctx, tenantID)
	if err != nil {
		return QRResult{}, err
	}
	observed := o.clock.Now()
	p, err := getter.GetQRCode(ctx, rec.SessionName, auth, force)
	if err != nil {
		o.log.Warn("qr request failed", "tenant", tenantID, "session", rec.SessionName, "err", err)
		res := o.qrResult(rec, integrations.QRCode{}, nil)
		res.Stale = true
		res.Message = err.Error()
		return res, nil
	}
	qr := integrations.ExtractQRCode(p)
	info := integrations.ReadStatus(p)
	if qr.Empty() && info.Connected {
		if disc, ok := o.adapter.(integrations.SessionDisconnector); ok {
			return o.reprobeQR(ctx, rec, auth, disc, getter, p)
		}
	}
	return o.foldQR(ctx, rec, observed, qr, info, p)
}

// reprobeQR logs a connected session out and asks for a fresh QR.
func (o *Orchestrator) reprobeQR(ctx context.Context, rec model.InstanceRecord, auth integrations.CallAuth, disc integrations.SessionDisconnector, getter integrations.QRCodeGetter, first integrations.Payload) (QRResult, error) {
	log := o.log.With("tenant", rec.TenantID, "session", rec.SessionName)
	discAt := o.clock.Now()
	if _, err := disc.DisconnectSession(ctx, rec.SessionName, auth); err != nil {
		log.Warn("auto disconnect failed", "err", err)
		return o.foldQR(ctx, rec, discAt, integrations.QRCode{}, integrations.ReadStatus(first), first)
	}
	log.Info("auto disconnect for fresh qr")
	observed := o.clock.Now()
	again, err := getter.GetQRCode(ctx, rec.SessionName, auth, true)
	if err != nil {
		log.Warn("qr reprobe failed", "err", err)
		again = first
	}
	info := integrations.ReadStatus(again)
	if info.Connected {
		return o.foldQR(ctx, rec, observed, integrations.QRCode{}, info, again)
	}
	var res QRResult
	err = o.locked(ctx, rec.TenantID, func(s *scope) error {
		if s.rec.SessionName != rec.SessionName {
			return fmt.Errorf("%w: session relinked during qr request", integrations.ErrSessionMismatch)
		}
		if err := s.transitionAt(ctx, model.StatusDisconnected, discAt); err != nil {
			return err
		}
		qr := integrations.ExtractQRCode(again)
		if _, err := s.apply(ctx, qrEvent(rec, qr, info, observed)); err != nil {
			return err
		}
		res = o.qrResult(s.rec, qr, again)
		return nil
	})
	return res, err
}

// foldQR records what a QR answer says about the session.
func (o *Orchestrator) foldQR(ctx context.Context, rec model.InstanceRecord, observed time.Time, qr integrations.QRCode, info integrations.StatusInfo, raw integrations.Payload) (QRResult, error) {
	var res QRResult
	err := o.locked(ctx, rec.TenantID, func(s *scope) error {
		if _, err := s.apply(ctx, qrEvent(rec, qr, info, observed)); err != nil {
			return err
		}
		res = o.qrResult(s.rec, qr, raw)
		if !res.QRAvailable {
			res.Connected = info.Connected
			if res.Connected {
				res.Message = "session is connected"
			} else {
				res.Message = "no QR code in vendor answer"
			}
		}
		return nil
	})
	return res, err
}

// qrEvent turns a QR answer into an observation. A QR without any status
// reading means the vendor is waiting for pairing.
func qrEvent(rec model.InstanceRecord, qr integrations.QRCode, info integrations.StatusInfo, observed time.Time) model.ConnectionEvent {
	ev := info.Event(rec.TenantID, model.SourceAPI, observed)
	ev.SessionHint = rec.SessionName
	if !qr.Empty() && ev.Reported == model.ReportedUnknown {
		ev.Reported = model.ReportedPending
	}
	return ev
}
