package uazapi

import (
	"net/http"

	"wagateway/internal/integrations/probe"
)

// Route lists probed by default. Configuration may replace any of them.
var (
	CreatePaths = []string{
		"/instance/init",
		"/admin/instance/create",
		"/admin/instances/create",
		"/admin/session/create",
		"/admin/sessions/create",
		"/admin/create/instance",
		"/admin/create/session",
		"/instance/create",
		"/session/create",
		"/create/instance",
		"/create/session",
	}
	CreateKeys = []string{"name", "instance", "session", "sessionId", "instanceName"}

	DisconnectPaths = []string{
		"/session/logout",
		"/instance/logout",
		"/disconnect",
		"/session/reset",
		"/instance/reset",
		"/logout",
		"/sessions/logout",
		"/sessions/reset",
		"/sessions/disconnect",
		"/instance/:name/logout",
		"/instances/:name/logout",
		"/session/:name/logout",
		"/sessions/:name/logout",
		"/disconnect/:name",
		"/logout/:name",
		"/instance/:name/reset",
		"/session/:name/reset",
		"/instances/:name/reset",
		"/session/:name/disconnect",
		"/sessions/:name/disconnect",
		"/instance/:name/disconnect",
		"/instances/:name/disconnect",
		"/session/:name/delete",
		"/instance/:name/delete",
		"/sessions/:name/delete",
		"/instances/:name/delete",
		"/admin/instance/:name/logout",
		"/admin/instances/:name/logout",
		"/admin/session/:name/logout",
		"/admin/sessions/:name/logout",
		"/admin/instance/:name/reset",
		"/admin/instances/:name/reset",
		"/admin/disconnect/:name",
		"/admin/logout/:name",
		"/admin/disconnect",
		"/admin/logout",
		"/admin/session/:name/disconnect",
		"/admin/sessions/:name/disconnect",
		"/admin/instance/:name/disconnect",
		"/admin/instances/:name/disconnect",
		"/admin/session/:name/delete",
		"/admin/sessions/:name/delete",
		"/admin/instance/:name/delete",
		"/admin/instances/:name/delete",
		"/admin/sessions/disconnect",
		"/admin/sessions/logout",
	}
	DisconnectKeys = []string{"instance", "name", "session", "sessionId", "instanceName", "session_id"}

	QRPaths = []string{
		"/qrcode",
		"/whatsapp/qr",
		"/status/qrcode",
		"/instance/qr",
		"/connect/qr",
		"/status/instance",
		"/status",
		"/instance/status",
		"/get/qr",
		"/qr",
	}
	AdminQRPaths = []string{
		"/admin/status/instance",
		"/admin/instance/status",
		"/admin/instance/qr",
		"/admin/status/qrcode",
		"/admin/get/qr",
		"/admin/qr",
	}
	QRKeys = []string{"instance", "name", "session", "sessionId", "instanceName", "keys"}

	TokenListPaths = []string{
		"/admin/instances",
		"/admin/sessions",
		"/admin/list",
		"/admin/instances/list",
		"/instances",
		"/sessions",
		"/list",
	}
	TokenDetailPaths = []string{
		"/admin/instance/:name",
		"/admin/instances/:name",
		"/admin/session/:name",
		"/admin/sessions/:name",
	}
)

// Override is a configured route tried before the built-in list.
type Override struct {
	Path   string   `yaml:"path"`
	Method string   `yaml:"method"`
	Keys   []string `yaml:"keys"`
	// Admin sends administrative credentials.
	Admin bool `yaml:"admin"`
}

// Routes is the full candidate configuration of the adapter.
type Routes struct {
	Create     Override `yaml:"create"`
	Disconnect Override `yaml:"disconnect"`
	QR         Override `yaml:"qr"`
	// QRForce asks every QR probe for a fresh code.
	QRForce bool `yaml:"qr_force"`

	CreatePaths      []string `yaml:"create_paths"`
	DisconnectPaths  []string `yaml:"disconnect_paths"`
	QRPaths          []string `yaml:"qr_paths"`
	AdminQRPaths     []string `yaml:"admin_qr_paths"`
	TokenListPaths   []string `yaml:"token_list_paths"`
	TokenDetailPaths []string `yaml:"token_detail_paths"`
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// createCandidates: override first, then per path POST once per key followed
// by GET carrying every key.
func (r Routes) createCandidates() []probe.Candidate {
	var eps []probe.Endpoint
	if r.Create.Path != "" {
		eps = append(eps, probe.Endpoint{
			Path:    r.Create.Path,
			Methods: probe.PreferredMethods(methodOr(r.Create.Method, http.MethodPost)),
			Keys:    orDefault(r.Create.Keys, CreateKeys),
			KeyMode: probe.AllKeys,
			Admin:   true,
		})
	}
	for _, p := range orDefault(r.CreatePaths, CreatePaths) {
		eps = append(eps,
			probe.Endpoint{Path: p, Methods: []string{http.MethodPost}, Keys: CreateKeys, KeyMode: probe.EachKey, Admin: true},
			probe.Endpoint{Path: p, Methods: []string{http.MethodGet}, Keys: CreateKeys, KeyMode: probe.AllKeys, Admin: true},
		)
	}
	return probe.Expand(eps...)
}

// disconnectCandidates: override first with its preferred method, then per
// path POST, GET and DELETE, each once per key.
func (r Routes) disconnectCandidates() []probe.Candidate {
	var eps []probe.Endpoint
	if r.Disconnect.Path != "" {
		eps = append(eps, probe.Endpoint{
			Path:    r.Disconnect.Path,
			Methods: probe.PreferredMethods(methodOr(r.Disconnect.Method, http.MethodPost), http.MethodPost, http.MethodGet, http.MethodDelete),
			Keys:    orDefault(r.Disconnect.Keys, CreateKeys),
			KeyMode: probe.AllKeys,
			Admin:   r.Disconnect.Admin,
		})
	}
	eps = append(eps, probe.Paths(
		[]string{http.MethodPost, http.MethodGet, http.MethodDelete},
		DisconnectKeys, probe.EachKey,
		orDefault(r.DisconnectPaths, DisconnectPaths)...,
	)...)
	return probe.Expand(eps...)
}

// qrCandidates: override first, admin routes before normal ones when a
// session is known, per path GET with every key then POST once per key.
// With a session every QR call is administrative.
func (r Routes) qrCandidates(session string) []probe.Candidate {
	admin := session != ""
	var eps []probe.Endpoint
	if r.QR.Path != "" {
		eps = append(eps, probe.Endpoint{
			Path:    r.QR.Path,
			Methods: probe.PreferredMethods(methodOr(r.QR.Method, http.MethodGet)),
			Keys:    orDefault(r.QR.Keys, QRKeys),
			KeyMode: probe.AllKeys,
			Admin:   admin || r.QR.Admin,
		})
	}
	paths := orDefault(r.QRPaths, QRPaths)
	if admin {
		paths = append(append([]string{}, orDefault(r.AdminQRPaths, AdminQRPaths)...), paths...)
	}
	for _, p := range paths {
		eps = append(eps, probe.Endpoint{Path: p, Methods: []string{http.MethodGet}, Keys: QRKeys, KeyMode: probe.AllKeys, Admin: admin})
		if admin {
			eps = append(eps, probe.Endpoint{Path: p, Methods: []string{http.MethodPost}, Keys: QRKeys, KeyMode: probe.EachKey, Admin: true})
		}
	}
	return probe.Expand(eps...)
}

// Token lookups always use administrative credentials, whatever the path.
func (r Routes) tokenListCandidates() []probe.Candidate {
	return adminGets(orDefault(r.TokenListPaths, TokenListPaths))
}

func (r Routes) tokenDetailCandidates() []probe.Candidate {
	return adminGets(orDefault(r.TokenDetailPaths, TokenDetailPaths))
}

func adminGets(paths []string) []probe.Candidate {
	eps := probe.Paths([]string{http.MethodGet}, nil, probe.AllKeys, paths...)
	for i := range eps {
		eps[i].Admin = true
	}
	return probe.Expand(eps...)
}

func methodOr(m, def string) string {
	if m == "" {
		return def
	}
	return m
}
