package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/elmyly/whaty/internal/entities"
	"github.com/elmyly/whaty/internal/infrastructure"
)

// Bulk campaign pacing presets. A fixed cooperative delay between recipients
// protects the provider from throttling; it is not a token bucket.
const (
	SpeedSlow   = "slow"
	SpeedNormal = "normal"
	SpeedFast   = "fast"
)

var bulkDelays = map[string]time.Duration{
	SpeedSlow:   5000 * time.Millisecond,
	SpeedNormal: 2000 * time.Millisecond,
	SpeedFast:   350 * time.Millisecond,
}

// SessionSource yields the live connection for a session key, or ErrNotReady.
type SessionSource interface {
	RequireConnected(key string) (infrastructure.Conn, error)
}

type SingleRequest struct {
	Recipient  string               `json:"recipient"`
	Body       string               `json:"body"`
	Tag        string               `json:"tag,omitempty"`
	Signature  string               `json:"signature,omitempty"`
	Attachment *entities.Attachment `json:"attachment,omitempty"`
}

type ReplyRequest struct {
	ChatID     string               `json:"chat_id,omitempty"`
	Recipient  string               `json:"recipient,omitempty"`
	Body       string               `json:"body"`
	Attachment *entities.Attachment `json:"attachment,omitempty"`
}

type BulkRequest struct {
	Recipients []string             `json:"recipients"`
	Body       string               `json:"body"`
	Tag        string               `json:"tag,omitempty"`
	Signature  string               `json:"signature,omitempty"`
	Speed      string               `json:"speed,omitempty"`
	Attachment *entities.Attachment `json:"attachment,omitempty"`
}

type BulkResult struct {
	Report entities.BulkReport `json:"report"`
	Quota  entities.QuotaInfo  `json:"quota"`
}

// SendService turns logical send requests into provider calls, gated by quota
// and session readiness.
type SendService struct {
	sessions SessionSource
	ledger   *QuotaLedger
	httpc    *http.Client
	log      zerolog.Logger

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

func NewSendService(sessions SessionSource, ledger *QuotaLedger, log zerolog.Logger) *SendService {
	return &SendService{
		sessions: sessions,
		ledger:   ledger,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		log:      log,
		sleep:    time.Sleep,
	}
}

// userID resolves the acting user from the session key.
func userID(key string) (int, error) {
	id, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("invalid session key %q: %w", key, err)
	}
	return id, nil
}

// composeBody joins the optional tag and signature around the body:
// "[tag] body\n\n- signature".
func composeBody(tag, body, signature string) string {
	out := body
	if tag != "" {
		out = "[" + tag + "] " + out
	}
	if signature != "" {
		out += "\n\n- " + signature
	}
	return out
}

// resolveAttachment picks the inline payload when present, otherwise fetches
// the remote URL. Fetch failures surface as ErrMediaFetchFailed, never
// silently dropped. Returns nil when the request carries no usable media.
func (s *SendService) resolveAttachment(ctx context.Context, att *entities.Attachment) (*entities.Attachment, error) {
	if att == nil {
		return nil, nil
	}
	if len(att.Data) > 0 {
		return att, nil
	}
	if att.URL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrMediaFetchFailed, err)
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrMediaFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", entities.ErrMediaFetchFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrMediaFetchFailed, err)
	}

	resolved := *att
	resolved.Data = data
	if resolved.MimeType == "" {
		resolved.MimeType = resp.Header.Get("Content-Type")
	}
	return &resolved, nil
}

// SendSingle dispatches one message. Quota is checked before any provider
// call and consumed only after a successful send.
func (s *SendService) SendSingle(ctx context.Context, key string, req SingleRequest) (*entities.SendResult, error) {
	uid, err := userID(key)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Check(uid, 1); err != nil {
		return nil, err
	}

	conn, err := s.sessions.RequireConnected(key)
	if err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(req.Recipient)
	if err != nil {
		return nil, err
	}
	target, err := conn.ResolveAddress(ctx, phone.Digits)
	if err != nil {
		return nil, err
	}

	body := composeBody(req.Tag, req.Body, req.Signature)
	att, err := s.resolveAttachment(ctx, req.Attachment)
	if err != nil {
		return nil, err
	}

	if err := conn.SendMessage(ctx, target, body, att); err != nil {
		return nil, &entities.ProviderError{Op: "send", Err: err}
	}

	quota, err := s.ledger.Consume(uid, 1)
	if err != nil {
		return nil, err
	}
	return &entities.SendResult{
		Recipient:      target,
		Body:           body,
		UsedAttachment: att != nil,
		Quota:          quota,
	}, nil
}

// SendReply targets an existing chat when a chat id is supplied, otherwise
// falls back to recipient-number resolution.
func (s *SendService) SendReply(ctx context.Context, key string, req ReplyRequest) (*entities.SendResult, error) {
	uid, err := userID(key)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Check(uid, 1); err != nil {
		return nil, err
	}

	conn, err := s.sessions.RequireConnected(key)
	if err != nil {
		return nil, err
	}

	var target string
	switch {
	case req.ChatID != "":
		target = req.ChatID
	case req.Recipient != "":
		phone, err := NormalizePhone(req.Recipient)
		if err != nil {
			return nil, err
		}
		target, err = conn.ResolveAddress(ctx, phone.Digits)
		if err != nil {
			return nil, err
		}
	default:
		return nil, entities.ErrMissingTarget
	}

	att, err := s.resolveAttachment(ctx, req.Attachment)
	if err != nil {
		return nil, err
	}

	if err := conn.SendMessage(ctx, target, req.Body, att); err != nil {
		return nil, &entities.ProviderError{Op: "send", Err: err}
	}

	quota, err := s.ledger.Consume(uid, 1)
	if err != nil {
		return nil, err
	}
	return &entities.SendResult{
		Recipient:      target,
		Body:           req.Body,
		UsedAttachment: att != nil,
		Quota:          quota,
	}, nil
}

// SendBulk runs a campaign over recipients in input order. The whole campaign
// is rejected upfront when quota cannot cover every recipient. One recipient's
// failure never aborts the run, except quota exhaustion mid-loop, which stops
// the remaining queue immediately.
func (s *SendService) SendBulk(ctx context.Context, key string, req BulkRequest) (*BulkResult, error) {
	uid, err := userID(key)
	if err != nil {
		return nil, err
	}
	quota, err := s.ledger.Check(uid, len(req.Recipients))
	if err != nil {
		return nil, err
	}

	conn, err := s.sessions.RequireConnected(key)
	if err != nil {
		return nil, err
	}

	body := composeBody(req.Tag, req.Body, req.Signature)
	// The attachment is campaign-level: resolve it once so a broken URL fails
	// the run before anything is sent.
	att, err := s.resolveAttachment(ctx, req.Attachment)
	if err != nil {
		return nil, err
	}

	delay, ok := bulkDelays[req.Speed]
	if !ok {
		delay = bulkDelays[SpeedNormal]
	}

	report := make(entities.BulkReport, 0, len(req.Recipients))
	for i, recipient := range req.Recipients {
		entry := entities.BulkEntry{Recipient: recipient, Status: "sent"}
		newQuota, err := s.sendBulkOne(ctx, conn, uid, recipient, body, att)
		if err != nil {
			entry.Status = "failed"
			entry.Detail = err.Error()
			var quotaErr *entities.QuotaExceededError
			if errors.As(err, &quotaErr) {
				// A concurrent send drained the budget under us; stop here.
				report = append(report, entry)
				s.log.Warn().Str("session", key).Int("sent", i).Msg("bulk campaign halted on quota exhaustion")
				return &BulkResult{Report: report, Quota: quotaErr.Info()}, nil
			}
		} else {
			quota = newQuota
		}
		report = append(report, entry)

		if i < len(req.Recipients)-1 {
			s.sleep(delay)
		}
	}
	return &BulkResult{Report: report, Quota: quota}, nil
}

// sendBulkOne runs the single-send logic for one campaign recipient with
// isolated failure handling.
func (s *SendService) sendBulkOne(ctx context.Context, conn infrastructure.Conn, uid int, recipient, body string, att *entities.Attachment) (entities.QuotaInfo, error) {
	phone, err := NormalizePhone(recipient)
	if err != nil {
		return entities.QuotaInfo{}, err
	}
	target, err := conn.ResolveAddress(ctx, phone.Digits)
	if err != nil {
		return entities.QuotaInfo{}, err
	}
	if err := conn.SendMessage(ctx, target, body, att); err != nil {
		return entities.QuotaInfo{}, &entities.ProviderError{Op: "send", Err: err}
	}
	return s.ledger.Consume(uid, 1)
}
