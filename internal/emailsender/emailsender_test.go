package emailsender

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/errkind"
)

func TestSanitizeStripsControlCharacters(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{"clean text unchanged", "Hi Ada, loved the launch.", "Hi Ada, loved the launch.", false},
		{"keeps newlines and tabs", "line one\nline\ttwo", "line one\nline\ttwo", false},
		{"strips bell and backspace", "hi\x07there\x08", "hithere", true},
		{"strips unpaired surrogate", "hi�there", "hithere", true},
		{"empty string", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := sanitize(tc.in)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.changed, changed)
		})
	}
}

func TestSanitizeTagValue(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"alphanumeric passthrough", "Acme123", "Acme123"},
		{"spaces become underscores", "Acme Corp", "Acme_Corp"},
		{"hyphen and underscore preserved", "acme-corp_io", "acme-corp_io"},
		{"all invalid chars falls back to unknown", "!@#$%", "unknown"},
		{"empty falls back to unknown", "", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, sanitizeTagValue(tc.in))
		})
	}
}

func TestClassifySendError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errkind.Kind
	}{
		{"throttling exception", errors.New("ThrottlingException: Rate exceeded"), errkind.RateLimited},
		{"too many requests", errors.New("TooManyRequestsException"), errkind.RateLimited},
		{"timeout", errors.New("RequestTimeout: context deadline"), errkind.Transient},
		{"internal service error", errors.New("InternalFailure: internal error"), errkind.Transient},
		{"access denied", errors.New("AccessDeniedException: not authorized"), errkind.AuthError},
		{"message rejected", errors.New("MessageRejected: email address is not verified"), errkind.AuthError},
		{"sending quota exceeded", errors.New("SendingQuotaExceededException"), errkind.QuotaExceeded},
		{"unrecognized falls back to permanent", errors.New("some unrelated failure"), errkind.Permanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, classifySendError(tc.err))
		})
	}
}

func TestTrackNormalizesEventNames(t *testing.T) {
	s := &Sender{}
	cases := []struct {
		event string
		want  domain.EmailDeliveryStatus
	}{
		{"delivery", domain.DeliveryDelivered},
		{"Delivery", domain.DeliveryDelivered},
		{"bounce", domain.DeliveryBounced},
		{"complaint", domain.DeliveryComplained},
		{"send", domain.DeliverySent},
		{"unknown-event", domain.DeliveryFailed},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			require.Equal(t, tc.want, s.Track(domain.Prospect{}, tc.event))
		})
	}
}

func TestSendRejectsProspectMissingEmailOrBody(t *testing.T) {
	s := &Sender{}
	outcome := s.Send(nil, domain.Prospect{Name: "Ada Lovelace", EmailBody: "hello"})
	require.Error(t, outcome.Err)
	require.Equal(t, errkind.Permanent, errkind.As(outcome.Err))
	require.False(t, outcome.Success)
}

func TestSendBatchRejectsOversizedBatch(t *testing.T) {
	s := &Sender{}
	prospects := make([]domain.Prospect, maxBatchSize+1)
	_, err := s.SendBatch(nil, prospects)
	require.Error(t, err)
	require.Equal(t, errkind.Permanent, errkind.As(err))
}

func TestSendBatchEmptyInput(t *testing.T) {
	s := &Sender{}
	outcomes, err := s.SendBatch(nil, nil)
	require.NoError(t, err)
	require.Nil(t, outcomes)
}
