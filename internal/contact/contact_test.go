package contact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"autoconnect/internal/api"
	"autoconnect/internal/apperr"
	"autoconnect/pkg/autoconnect"
	"autoconnect/pkg/captcha"
)

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) Verify(ctx context.Context, solution string) error {
	f.calls++
	return f.err
}

type fakeSender struct {
	sent []autoconnect.ContactMessage
}

func (f *fakeSender) SendContactEmail(ctx context.Context, msg autoconnect.ContactMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func validInquiry() Inquiry {
	return Inquiry{Name: " Alice ", Email: "alice@example.ph", Inquiry: "Do you rent vans?", CaptchaSolution: "sol"}
}

func TestSend(t *testing.T) {
	v, s := &fakeVerifier{}, &fakeSender{}
	if err := NewService(v, s, nil).Send(context.Background(), validInquiry()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].Name != "Alice" {
		t.Fatalf("unexpected sent %+v", s.sent)
	}
}

func TestSend_CaptchaGatesDelivery(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{"rejected", &captcha.RejectedError{Reasons: []string{"solution_invalid"}}, apperr.KindValidation},
		{"provider down", errors.New("dial tcp: refused"), apperr.KindNetwork},
	}
	for _, c := range cases {
		v, s := &fakeVerifier{err: c.err}, &fakeSender{}
		err := NewService(v, s, nil).Send(context.Background(), validInquiry())
		if apperr.KindOf(err) != c.kind {
			t.Fatalf("%s: expected %s, got %v", c.name, c.kind, err)
		}
		if len(s.sent) != 0 {
			t.Fatalf("%s: message sent despite captcha failure", c.name)
		}
	}

	in := validInquiry()
	in.CaptchaSolution = ""
	v := &fakeVerifier{}
	if err := NewService(v, &fakeSender{}, nil).Send(context.Background(), in); !apperr.Is(err, apperr.KindValidation) || v.calls != 0 {
		t.Fatalf("expected missing solution to fail locally, got %v (calls=%d)", err, v.calls)
	}
}

func TestHandler(t *testing.T) {
	h := Handlers{Service: NewService(&fakeVerifier{}, &fakeSender{}, nil)}

	rr := httptest.NewRecorder()
	h.Send(rr, httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":"A","email":"nope","inquiry":"x","captchaSolution":"s"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var env api.ErrorEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Fields["email"] == "" {
		t.Fatalf("expected email field error, got %+v", env.Error)
	}

	rr = httptest.NewRecorder()
	h.Send(rr, httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":"A","email":"a@example.ph","inquiry":"x","captchaSolution":"s"}`)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
}
