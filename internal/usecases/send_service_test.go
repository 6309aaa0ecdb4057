package usecases

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/elmyly/whaty/internal/entities"
	"github.com/elmyly/whaty/internal/infrastructure"
)

type sentCall struct {
	Target string
	Body   string
	Att    *entities.Attachment
}

// fakeConn records sends and lets tests inject per-recipient failures.
type fakeConn struct {
	mu         sync.Mutex
	sent       []sentCall
	resolveErr map[string]error
	sendErr    map[string]error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		resolveErr: make(map[string]error),
		sendErr:    make(map[string]error),
	}
}

func (c *fakeConn) ResolveAddress(_ context.Context, digits string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.resolveErr[digits]; ok {
		return "", err
	}
	return digits + "@s.whatsapp.net", nil
}

func (c *fakeConn) SendMessage(_ context.Context, target, body string, att *entities.Attachment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.sendErr[target]; ok {
		return err
	}
	c.sent = append(c.sent, sentCall{Target: target, Body: body, Att: att})
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) ListChats(context.Context) ([]entities.Chat, error) { return nil, nil }
func (c *fakeConn) FetchMessages(context.Context, string, int) ([]entities.ChatMessage, error) {
	return nil, nil
}
func (c *fakeConn) Logout(context.Context) error { return nil }
func (c *fakeConn) Teardown() error              { return nil }

type fakeSessions struct {
	conn   infrastructure.Conn
	err    error
	called int
}

func (f *fakeSessions) RequireConnected(string) (infrastructure.Conn, error) {
	f.called++
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

func newTestSendService(t *testing.T, limit, used int) (*SendService, *fakeConn, *QuotaLedger, string) {
	t.Helper()
	store := newMemUserStore()
	seedUser(t, store, limit, used)
	ledger := NewQuotaLedger(store)
	conn := newFakeConn()
	svc := NewSendService(&fakeSessions{conn: conn}, ledger, zerolog.Nop())
	svc.sleep = func(time.Duration) {}
	return svc, conn, ledger, "1"
}

func TestComposeBody(t *testing.T) {
	require.Equal(t, "hello", composeBody("", "hello", ""))
	require.Equal(t, "[promo] hello", composeBody("promo", "hello", ""))
	require.Equal(t, "hello\n\n- Team", composeBody("", "hello", "Team"))
	require.Equal(t, "[promo] hello\n\n- Team", composeBody("promo", "hello", "Team"))
}

func TestSendSingle(t *testing.T) {
	svc, conn, _, key := newTestSendService(t, 10, 0)

	result, err := svc.SendSingle(context.Background(), key, SingleRequest{
		Recipient: "+212 612 345 678",
		Body:      "hello",
		Tag:       "promo",
		Signature: "Team",
	})
	require.NoError(t, err)
	require.Equal(t, "212612345678@s.whatsapp.net", result.Recipient)
	require.Equal(t, "[promo] hello\n\n- Team", result.Body)
	require.False(t, result.UsedAttachment)
	require.Equal(t, 1, result.Quota.Used)
	require.Equal(t, 9, result.Quota.Remaining)
	require.Equal(t, 1, conn.sentCount())
}

func TestSendSingleInlineAttachment(t *testing.T) {
	svc, conn, _, key := newTestSendService(t, 10, 0)

	att := &entities.Attachment{Data: []byte{0x89, 0x50}, MimeType: "image/png", FileName: "qr.png"}
	result, err := svc.SendSingle(context.Background(), key, SingleRequest{
		Recipient:  "212612345678",
		Body:       "see attached",
		Attachment: att,
	})
	require.NoError(t, err)
	require.True(t, result.UsedAttachment)
	require.Equal(t, 1, conn.sentCount())
	require.Equal(t, att.Data, conn.sent[0].Att.Data)
}

func TestSendSingleFetchesURLAttachment(t *testing.T) {
	svc, conn, _, key := newTestSendService(t, 10, 0)

	payload := []byte("%PDF-1.7 stub")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(payload)
	}))
	defer ts.Close()

	result, err := svc.SendSingle(context.Background(), key, SingleRequest{
		Recipient:  "212612345678",
		Body:       "invoice attached",
		Attachment: &entities.Attachment{URL: ts.URL, FileName: "invoice.pdf"},
	})
	require.NoError(t, err)
	require.True(t, result.UsedAttachment)
	require.Equal(t, 1, conn.sentCount())
	require.Equal(t, payload, conn.sent[0].Att.Data)
	require.Equal(t, "application/pdf", conn.sent[0].Att.MimeType)
}

func TestSendSingleMediaFetchBadStatus(t *testing.T) {
	svc, conn, ledger, key := newTestSendService(t, 10, 0)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := svc.SendSingle(context.Background(), key, SingleRequest{
		Recipient:  "212612345678",
		Body:       "see attached",
		Attachment: &entities.Attachment{URL: ts.URL},
	})
	require.ErrorIs(t, err, entities.ErrMediaFetchFailed)
	require.Zero(t, conn.sentCount())

	quota, err := ledger.Check(1, 0)
	require.NoError(t, err)
	require.Zero(t, quota.Used)
}

func TestSendSingleMediaFetchConnectionRefused(t *testing.T) {
	svc, conn, ledger, key := newTestSendService(t, 10, 0)

	// Grab a loopback URL and shut the server down so the dial fails.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := svc.SendSingle(context.Background(), key, SingleRequest{
		Recipient:  "212612345678",
		Body:       "see attached",
		Attachment: &entities.Attachment{URL: url},
	})
	require.ErrorIs(t, err, entities.ErrMediaFetchFailed)
	require.Zero(t, conn.sentCount())

	quota, err := ledger.Check(1, 0)
	require.NoError(t, err)
	require.Zero(t, quota.Used)
}

func TestSendBulkMediaFetchFailureAbortsBeforeAnySend(t *testing.T) {
	svc, conn, ledger, key := newTestSendService(t, 10, 0)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := svc.SendBulk(context.Background(), key, BulkRequest{
		Recipients: []string{"212612345671", "212612345672"},
		Body:       "hi",
		Attachment: &entities.Attachment{URL: ts.URL},
	})
	require.ErrorIs(t, err, entities.ErrMediaFetchFailed)
	require.Zero(t, conn.sentCount())

	quota, err := ledger.Check(1, 0)
	require.NoError(t, err)
	require.Zero(t, quota.Used)
}

func TestSendSingleQuotaExhaustedBeforeProviderTouch(t *testing.T) {
	store := newMemUserStore()
	seedUser(t, store, 5, 5)
	ledger := NewQuotaLedger(store)
	sessions := &fakeSessions{conn: newFakeConn()}
	svc := NewSendService(sessions, ledger, zerolog.Nop())

	_, err := svc.SendSingle(context.Background(), "1", SingleRequest{Recipient: "212612345678", Body: "hi"})
	var quotaErr *entities.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.Zero(t, sessions.called)
}

func TestSendSingleNotReady(t *testing.T) {
	store := newMemUserStore()
	seedUser(t, store, 5, 0)
	ledger := NewQuotaLedger(store)
	svc := NewSendService(&fakeSessions{err: entities.ErrNotReady}, ledger, zerolog.Nop())

	_, err := svc.SendSingle(context.Background(), "1", SingleRequest{Recipient: "212612345678", Body: "hi"})
	require.ErrorIs(t, err, entities.ErrNotReady)

	// Nothing was consumed on the failed attempt.
	user, err := store.GetByID(1)
	require.NoError(t, err)
	require.Zero(t, user.QuotaUsed)
}

func TestSendSingleProviderFailureLeavesQuotaAlone(t *testing.T) {
	svc, conn, ledger, key := newTestSendService(t, 5, 0)
	conn.sendErr["212612345678@s.whatsapp.net"] = errors.New("stream closed")

	_, err := svc.SendSingle(context.Background(), key, SingleRequest{Recipient: "212612345678", Body: "hi"})
	var provErr *entities.ProviderError
	require.ErrorAs(t, err, &provErr)

	quota, err := ledger.Check(1, 1)
	require.NoError(t, err)
	require.Zero(t, quota.Used)
}

func TestSendReplyPrefersChatID(t *testing.T) {
	svc, conn, _, key := newTestSendService(t, 5, 0)

	result, err := svc.SendReply(context.Background(), key, ReplyRequest{
		ChatID:    "212699999999@s.whatsapp.net",
		Recipient: "212612345678",
		Body:      "re: hi",
	})
	require.NoError(t, err)
	require.Equal(t, "212699999999@s.whatsapp.net", result.Recipient)
	require.Equal(t, 1, conn.sentCount())
	require.Equal(t, "212699999999@s.whatsapp.net", conn.sent[0].Target)
}

func TestSendReplyMissingTarget(t *testing.T) {
	svc, _, _, key := newTestSendService(t, 5, 0)

	_, err := svc.SendReply(context.Background(), key, ReplyRequest{Body: "hi"})
	require.ErrorIs(t, err, entities.ErrMissingTarget)
}

func TestSendBulkRejectedUpfrontWhenQuotaShort(t *testing.T) {
	store := newMemUserStore()
	seedUser(t, store, 10, 8)
	ledger := NewQuotaLedger(store)
	conn := newFakeConn()
	sessions := &fakeSessions{conn: conn}
	svc := NewSendService(sessions, ledger, zerolog.Nop())

	result, err := svc.SendBulk(context.Background(), "1", BulkRequest{
		Recipients: []string{"212612345671", "212612345672", "212612345673"},
		Body:       "hi",
	})
	var quotaErr *entities.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.Nil(t, result)
	require.Zero(t, conn.sentCount())
	require.Zero(t, sessions.called)
}

func TestSendBulkIsolatesRecipientFailures(t *testing.T) {
	svc, conn, ledger, key := newTestSendService(t, 10, 0)
	conn.resolveErr["212612345672"] = entities.ErrUnknownRecipient

	result, err := svc.SendBulk(context.Background(), key, BulkRequest{
		Recipients: []string{"212612345671", "212612345672", "212612345673"},
		Body:       "hi",
	})
	require.NoError(t, err)
	require.Len(t, result.Report, 3)
	require.Equal(t, "sent", result.Report[0].Status)
	require.Equal(t, "failed", result.Report[1].Status)
	require.Contains(t, result.Report[1].Detail, "not registered")
	require.Equal(t, "sent", result.Report[2].Status)
	require.Equal(t, 2, conn.sentCount())

	quota, err := ledger.Check(1, 0)
	require.NoError(t, err)
	require.Equal(t, 2, quota.Used)
	require.Equal(t, quota, result.Quota)
}

func TestSendBulkInvalidNumberRecorded(t *testing.T) {
	svc, conn, _, key := newTestSendService(t, 10, 0)

	result, err := svc.SendBulk(context.Background(), key, BulkRequest{
		Recipients: []string{"123", "212612345678"},
		Body:       "hi",
	})
	require.NoError(t, err)
	require.Equal(t, "failed", result.Report[0].Status)
	require.Equal(t, "sent", result.Report[1].Status)
	require.Equal(t, 1, conn.sentCount())
}

func TestSendBulkHaltsWhenQuotaDrainedMidRun(t *testing.T) {
	store := newMemUserStore()
	seedUser(t, store, 3, 0)
	ledger := NewQuotaLedger(store)
	conn := newFakeConn()
	svc := NewSendService(&fakeSessions{conn: conn}, ledger, zerolog.Nop())

	// A concurrent send burns the rest of the budget during the inter-message
	// delay after the first recipient.
	drained := false
	svc.sleep = func(time.Duration) {
		if !drained {
			drained = true
			_, err := ledger.Consume(1, 2)
			require.NoError(t, err)
		}
	}

	result, err := svc.SendBulk(context.Background(), "1", BulkRequest{
		Recipients: []string{"212612345671", "212612345672", "212612345673"},
		Body:       "hi",
	})
	require.NoError(t, err)
	require.Len(t, result.Report, 2)
	require.Equal(t, "sent", result.Report[0].Status)
	require.Equal(t, "failed", result.Report[1].Status)
	require.Contains(t, result.Report[1].Detail, "quota exceeded")
	require.Zero(t, result.Quota.Remaining)
}

func TestSendBulkSpeedSelection(t *testing.T) {
	svc, _, _, key := newTestSendService(t, 10, 0)

	var delays []time.Duration
	svc.sleep = func(d time.Duration) { delays = append(delays, d) }

	_, err := svc.SendBulk(context.Background(), key, BulkRequest{
		Recipients: []string{"212612345671", "212612345672", "212612345673"},
		Body:       "hi",
		Speed:      SpeedFast,
	})
	require.NoError(t, err)
	// No trailing delay after the last recipient.
	require.Equal(t, []time.Duration{350 * time.Millisecond, 350 * time.Millisecond}, delays)

	delays = nil
	_, err = svc.SendBulk(context.Background(), key, BulkRequest{
		Recipients: []string{"212612345671", "212612345672"},
		Body:       "hi",
		Speed:      "warp",
	})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{2 * time.Second}, delays)
}
