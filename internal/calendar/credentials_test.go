package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

// scriptedSource returns queued tokens or errors in order, then
// repeats the last entry.
type scriptedSource struct {
	tokens []*oauth2.Token
	errs   []error
	calls  int
}

func (s *scriptedSource) Token() (*oauth2.Token, error) {
	i := s.calls
	if i >= len(s.tokens) {
		i = len(s.tokens) - 1
	}
	s.calls++
	if s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.tokens[i], nil
}

func TestIsValid_FreshToken(t *testing.T) {
	src := &scriptedSource{
		tokens: []*oauth2.Token{{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}},
		errs:   []error{nil},
	}
	creds := NewTokenCredentials(src, nil)
	assert.True(t, creds.IsValid(context.Background()))
}

func TestIsValid_ExpiringSoonIsInvalid(t *testing.T) {
	src := &scriptedSource{
		tokens: []*oauth2.Token{{AccessToken: "tok", Expiry: time.Now().Add(30 * time.Second)}},
		errs:   []error{nil},
	}
	creds := NewTokenCredentials(src, nil)
	assert.False(t, creds.IsValid(context.Background()))
}

func TestIsValid_NonExpiringToken(t *testing.T) {
	src := &scriptedSource{
		tokens: []*oauth2.Token{{AccessToken: "tok"}},
		errs:   []error{nil},
	}
	creds := NewTokenCredentials(src, nil)
	assert.True(t, creds.IsValid(context.Background()))
}

func TestRefresh_SourceFailure(t *testing.T) {
	src := &scriptedSource{
		tokens: []*oauth2.Token{nil},
		errs:   []error{errors.New("refresh token revoked")},
	}
	creds := NewTokenCredentials(src, nil)
	assert.False(t, creds.Refresh(context.Background()))
}

func TestRefresh_DropsCachedToken(t *testing.T) {
	expired := &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)}
	fresh := &oauth2.Token{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}
	src := &scriptedSource{
		tokens: []*oauth2.Token{expired, fresh},
		errs:   []error{nil, nil},
	}
	creds := NewTokenCredentials(src, nil)

	assert.False(t, creds.IsValid(context.Background()))
	assert.True(t, creds.Refresh(context.Background()))
	assert.True(t, creds.IsValid(context.Background()))
}
