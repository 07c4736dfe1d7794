// Package sms delivers one-time login codes by text message.
package sms

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SendTimeout bounds a single delivery attempt.
const SendTimeout = 10 * time.Second

// Sender hands a message to an SMS gateway. It returns the gateway's
// receipt id for the message.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// messageCreator is the part of the Twilio API service TwilioSender uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender sends messages through the Twilio Messages API.
type TwilioSender struct {
	api  messageCreator
	from string
}

var _ Sender = (*TwilioSender)(nil)

// NewTwilioSender builds a sender for the given account. from is the
// sending number in E.164 form.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	client.SetTimeout(SendTimeout)

	return &TwilioSender{api: client.Api, from: from}
}

// Send delivers body to the E.164 number to.
//
// The Twilio client has no context support, so the call runs in its own
// goroutine and Send returns early if ctx is done. The request itself is
// still bounded by SendTimeout.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (sid string, err error) {
	if err = ctx.Err(); err != nil {
		return sid, errors.Wrap(err, "sms not sent")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	type result struct {
		msg *openapi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := s.api.CreateMessage(params)
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "sms send abandoned")
		return sid, err
	case r := <-done:
		if r.err != nil {
			err = errors.Wrapf(r.err, "failed to send sms to %s", to)
			return sid, err
		}
		if r.msg != nil && r.msg.Sid != nil {
			sid = *r.msg.Sid
		}
		return sid, nil
	}
}
