package zapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagateway/internal/integrations"
	"wagateway/internal/model"
)

func TestNewReportsMissingCredentials(t *testing.T) {
	_, err := New(Options{InstanceID: "i"})
	require.ErrorIs(t, err, integrations.ErrCredentialsMissing)
	assert.Contains(t, err.Error(), "ZAPI_TOKEN, ZAPI_CLIENT_TOKEN")
}

func TestSendAndConfigure(t *testing.T) {
	type seen struct {
		method, path, clientToken string
		body                      map[string]any
	}
	var got []seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{method: r.Method, path: r.URL.Path, clientToken: r.Header.Get("Client-Token")}
		_ = json.NewDecoder(r.Body).Decode(&s.body)
		got = append(got, s)
		_, _ = w.Write([]byte(`{"zaapId":"z1"}`))
	}))
	defer srv.Close()

	a, err := New(Options{BaseURL: srv.URL, InstanceID: "inst", Token: "tok", ClientToken: "ct"})
	require.NoError(t, err)

	_, err = a.SendText(context.Background(), integrations.CallAuth{}, model.TextMessage{Phone: "+55 11", Text: "oi"})
	require.NoError(t, err)
	out, err := a.ConfigureWebhook(context.Background(), integrations.CallAuth{}, "https://gw/webhook/zapi/t1")
	require.NoError(t, err)
	assert.Equal(t, "https://gw/webhook/zapi/t1", out["webhookUrl"])

	require.Len(t, got, 2)
	assert.Equal(t, "/instances/inst/token/tok/send-text", got[0].path)
	assert.Equal(t, "ct", got[0].clientToken)
	assert.Equal(t, map[string]any{"phone": "5511", "message": "oi"}, got[0].body)
	assert.Equal(t, http.MethodPut, got[1].method)
	assert.Equal(t, "/instances/inst/token/tok/update-every-webhooks", got[1].path)
	assert.Equal(t, true, got[1].body["notifySentByMe"])
}

func TestSendOnlyCapabilities(t *testing.T) {
	a, err := New(Options{InstanceID: "i", Token: "t", ClientToken: "c"})
	require.NoError(t, err)
	assert.True(t, integrations.Supports(a, integrations.CapSendCarousel))
	assert.False(t, integrations.Supports(a, integrations.CapCreateSession))
	assert.False(t, integrations.Supports(a, integrations.CapGetSessionStatus))
}
