package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/wadeskhq/wadesk/internal/message"
	"github.com/wadeskhq/wadesk/internal/relay"
	"github.com/wadeskhq/wadesk/internal/tenant"
)

type fakeTenantStore struct {
	byChannel map[string]tenant.Tenant
	byToken   map[string]tenant.Tenant
	verified  []string
	markErr   error
}

func (s *fakeTenantStore) GetByChannelID(_ context.Context, channelID string) (tenant.Tenant, error) {
	t, ok := s.byChannel[channelID]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (s *fakeTenantStore) GetByVerifyToken(_ context.Context, token string) (tenant.Tenant, error) {
	t, ok := s.byToken[token]
	if !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (s *fakeTenantStore) MarkVerified(_ context.Context, id string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.verified = append(s.verified, id)
	return nil
}

type upsertCall struct {
	phone, name string
	lastActive  time.Time
}

type fakeContactStore struct {
	calls []upsertCall
	err   error
}

func (s *fakeContactStore) Upsert(_ context.Context, phone, displayName string, lastActive time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, upsertCall{phone: phone, name: displayName, lastActive: lastActive})
	return nil
}

type fakeMessageStore struct {
	persisted []message.Message
	seen      map[string]bool
	err       error
}

func (s *fakeMessageStore) Persist(_ context.Context, msg message.Message) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[msg.ID] {
		return false, nil
	}
	s.seen[msg.ID] = true
	s.persisted = append(s.persisted, msg)
	return true, nil
}

type fakeRelayer struct {
	inputs  []relay.Input
	outcome relay.Outcome
}

func (r *fakeRelayer) Relay(_ context.Context, input relay.Input) relay.Outcome {
	r.inputs = append(r.inputs, input)
	return r.outcome
}

func demoTenant() tenant.Tenant {
	return tenant.Tenant{
		ID:          "tenant-1",
		ChannelID:   "106540352242922",
		AccessToken: "graph-token",
		APIVersion:  "v23.0",
		VerifyToken: "hunter2",
	}
}

func newWebhookFixture() (*WebhookHandler, *fakeTenantStore, *fakeContactStore, *fakeMessageStore, *fakeRelayer) {
	t := demoTenant()
	tenants := &fakeTenantStore{
		byChannel: map[string]tenant.Tenant{t.ChannelID: t},
		byToken:   map[string]tenant.Tenant{t.VerifyToken: t},
	}
	contacts := &fakeContactStore{}
	messages := &fakeMessageStore{}
	now := time.Now().UTC()
	url := "https://inbox.example.com/media?token=abc"
	relayer := &fakeRelayer{outcome: relay.Outcome{URL: url, Uploaded: true, UploadedAt: &now}}
	h := NewWebhookHandler(nil, tenants, contacts, messages, relayer, "v23.0")
	return h, tenants, contacts, messages, relayer
}

func doVerify(h *WebhookHandler, query string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/webhook?"+query, nil)
	rec := httptest.NewRecorder()
	_ = h.HandleVerify(e.NewContext(req, rec))
	return rec
}

func doDelivery(h *WebhookHandler, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	_ = h.HandleDelivery(e.NewContext(req, rec))
	return rec
}

func TestVerifyEchoesChallenge(t *testing.T) {
	t.Parallel()

	h, tenants, _, _, _ := newWebhookFixture()
	rec := doVerify(h, "hub.mode=subscribe&hub.verify_token=hunter2&hub.challenge=xyz123")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "xyz123", rec.Body.String())
	require.Equal(t, []string{"tenant-1"}, tenants.verified)
}

func TestVerifyRejectsWithoutDetail(t *testing.T) {
	t.Parallel()

	h, tenants, _, _, _ := newWebhookFixture()

	cases := map[string]string{
		"wrong token":   "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=xyz",
		"wrong mode":    "hub.mode=unsubscribe&hub.verify_token=hunter2&hub.challenge=xyz",
		"no challenge":  "hub.mode=subscribe&hub.verify_token=hunter2",
		"empty request": "",
	}
	for name, query := range cases {
		rec := doVerify(h, query)
		require.Equal(t, http.StatusForbidden, rec.Code, name)
		require.Equal(t, "Forbidden", rec.Body.String(), name)
	}
	require.Empty(t, tenants.verified)
}

func TestVerifySurvivesMarkVerifiedFailure(t *testing.T) {
	t.Parallel()

	h, tenants, _, _, _ := newWebhookFixture()
	tenants.markErr = errors.New("db down")

	rec := doVerify(h, "hub.mode=subscribe&hub.verify_token=hunter2&hub.challenge=ok")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestDeliveryRejectsUnparseableBody(t *testing.T) {
	t.Parallel()

	h, _, _, messages, _ := newWebhookFixture()
	rec := doDelivery(h, "{not json")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, messages.persisted)
}

func TestDeliveryUnknownChannelAcknowledged(t *testing.T) {
	t.Parallel()

	h, _, contacts, messages, _ := newWebhookFixture()
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"000000000"},
		"messages":[{"id":"wamid.1","from":"15551234","timestamp":"1700000000","type":"text","text":{"body":"hi"}}]
	}}]}]}`

	rec := doDelivery(h, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, messages.persisted)
	require.Empty(t, contacts.calls)
}

func TestDeliveryTextMessagePersisted(t *testing.T) {
	t.Parallel()

	h, _, contacts, messages, relayer := newWebhookFixture()
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"},
		"contacts":[{"wa_id":"15551234","profile":{"name":"Ada"}}],
		"messages":[{"id":"wamid.text.1","from":"15551234","timestamp":"1700000000","type":"text","text":{"body":"hello there"}}]
	}}]}]}`

	rec := doDelivery(h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, messages.persisted, 1)
	msg := messages.persisted[0]
	require.Equal(t, "wamid.text.1", msg.ID)
	require.Equal(t, "15551234", msg.SenderID)
	require.Equal(t, "tenant-1", msg.ReceiverID)
	require.Equal(t, "hello there", msg.Content)
	require.Equal(t, "text", msg.MessageType)
	require.False(t, msg.IsSentByMe)
	require.False(t, msg.IsRead)
	require.Nil(t, msg.Media)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)

	require.Len(t, contacts.calls, 1)
	require.Equal(t, "15551234", contacts.calls[0].phone)
	require.Equal(t, "Ada", contacts.calls[0].name)

	// Text carries no attachment.
	require.Empty(t, relayer.inputs)
}

func TestDeliveryImageRelaySuccess(t *testing.T) {
	t.Parallel()

	h, _, _, messages, relayer := newWebhookFixture()
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"},
		"messages":[{"id":"wamid.img.1","from":"15551234","timestamp":"1700000000","type":"image",
			"image":{"id":"99001122","mime_type":"image/jpeg","sha256":"abcd","caption":"sunset"}}]
	}}]}]}`

	rec := doDelivery(h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, relayer.inputs, 1)
	require.Equal(t, "99001122", relayer.inputs[0].MediaID)
	require.Equal(t, "graph-token", relayer.inputs[0].AccessToken)
	require.Equal(t, "15551234", relayer.inputs[0].OwnerKey)

	require.Len(t, messages.persisted, 1)
	msg := messages.persisted[0]
	require.Equal(t, "sunset", msg.Content)
	require.Equal(t, "image", msg.MessageType)
	require.NotNil(t, msg.Media)
	require.True(t, msg.Media.Uploaded)
	require.NotNil(t, msg.Media.MediaURL)
	require.NotNil(t, msg.Media.UploadTimestamp)
	require.Nil(t, msg.Media.UploadError)
}

func TestDeliveryRelayFailureDegradesDescriptor(t *testing.T) {
	t.Parallel()

	h, _, _, messages, relayer := newWebhookFixture()
	relayer.outcome = relay.Outcome{Err: "resolve media url: status 404"}
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"},
		"messages":[{"id":"wamid.img.2","from":"15551234","timestamp":"1700000000","type":"image",
			"image":{"id":"99001123","mime_type":"image/jpeg","sha256":"abcd"}}]
	}}]}]}`

	rec := doDelivery(h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	// Relay failure never blocks persistence; the descriptor records it.
	require.Len(t, messages.persisted, 1)
	media := messages.persisted[0].Media
	require.NotNil(t, media)
	require.False(t, media.Uploaded)
	require.Nil(t, media.MediaURL)
	require.Nil(t, media.UploadTimestamp)
	require.NotNil(t, media.UploadError)
	require.Contains(t, *media.UploadError, "status 404")
}

func TestDeliveryUnsupportedTypeStoredAsPlaceholder(t *testing.T) {
	t.Parallel()

	h, _, _, messages, relayer := newWebhookFixture()
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"},
		"messages":[{"id":"wamid.loc.1","from":"15551234","timestamp":"1700000000","type":"location"}]
	}}]}]}`

	rec := doDelivery(h, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messages.persisted, 1)
	require.Equal(t, "[Unsupported message type: location]", messages.persisted[0].Content)
	require.Nil(t, messages.persisted[0].Media)
	require.Empty(t, relayer.inputs)
}

func TestDeliveryDuplicateRedelivery(t *testing.T) {
	t.Parallel()

	h, _, _, messages, _ := newWebhookFixture()
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"},
		"messages":[{"id":"wamid.dup.1","from":"15551234","timestamp":"1700000000","type":"text","text":{"body":"once"}}]
	}}]}]}`

	require.Equal(t, http.StatusOK, doDelivery(h, body).Code)
	require.Equal(t, http.StatusOK, doDelivery(h, body).Code)
	require.Len(t, messages.persisted, 1)
}

func TestDeliveryPreservesSenderOrder(t *testing.T) {
	t.Parallel()

	h, _, _, messages, _ := newWebhookFixture()
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"},
		"messages":[
			{"id":"wamid.ord.1","from":"15551234","timestamp":"1700000000","type":"text","text":{"body":"first"}},
			{"id":"wamid.ord.2","from":"15551234","timestamp":"1700000001","type":"text","text":{"body":"second"}}
		]
	}}]}]}`

	require.Equal(t, http.StatusOK, doDelivery(h, body).Code)
	require.Len(t, messages.persisted, 2)
	require.Equal(t, "first", messages.persisted[0].Content)
	require.Equal(t, "second", messages.persisted[1].Content)
}

func TestDeliveryContactFailureDoesNotBlockPersist(t *testing.T) {
	t.Parallel()

	h, _, contacts, messages, _ := newWebhookFixture()
	contacts.err = errors.New("db down")
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"},
		"messages":[{"id":"wamid.c.1","from":"15551234","timestamp":"1700000000","type":"text","text":{"body":"hi"}}]
	}}]}]}`

	require.Equal(t, http.StatusOK, doDelivery(h, body).Code)
	require.Len(t, messages.persisted, 1)
}

func TestDeliveryBadTimestampFallsBackToNow(t *testing.T) {
	t.Parallel()

	h, _, _, messages, _ := newWebhookFixture()
	body := `{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"},
		"messages":[{"id":"wamid.ts.1","from":"15551234","timestamp":"garbage","type":"text","text":{"body":"hi"}}]
	}}]}]}`

	require.Equal(t, http.StatusOK, doDelivery(h, body).Code)
	require.Len(t, messages.persisted, 1)
	require.WithinDuration(t, time.Now().UTC(), messages.persisted[0].Timestamp, time.Minute)
}
