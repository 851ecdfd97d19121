package fwerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "code and message", err: New(AlreadyEnabled, "ssh"), want: "ALREADY_ENABLED: ssh"},
		{name: "code only", err: New(AccessDenied, ""), want: "ACCESS_DENIED"},
		{name: "formatted", err: Errorf(InvalidZone, "zone %q", "dmz"), want: `INVALID_ZONE: zone "dmz"`},
		{name: "wrapped", err: Wrap(ParseError, errors.New("unexpected EOF"), "zones/a.xml"), want: "PARSE_ERROR: zones/a.xml: unexpected EOF"},
		{name: "unknown code", err: New(Code(999), "x"), want: "CODE_999: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsAndCodeOf(t *testing.T) {
	err := fmt.Errorf("add chain: %w", New(AlreadyEnabled, "chain 'x'"))

	assert.True(t, Is(err, AlreadyEnabled))
	assert.False(t, Is(err, NotEnabled))
	assert.Equal(t, AlreadyEnabled, CodeOf(err))
	assert.Equal(t, UnknownError, CodeOf(errors.New("plain")))
	assert.True(t, errors.Is(err, &Error{Code: AlreadyEnabled}))
	assert.False(t, errors.Is(err, &Error{Code: NotEnabled}))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(ParseError, nil, "ignored"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		code Code
		msg  string
	}{
		{"INVALID_ZONE: lab", InvalidZone, "lab"},
		{"ALREADY_ENABLED: service 'ssh' already in 'public'", AlreadyEnabled, "service 'ssh' already in 'public'"},
		{"NOT_ENABLED", NotEnabled, ""},
		{"something broke", UnknownError, "something broke"},
	}
	for _, tt := range tests {
		got := Parse(tt.in)
		if got.Code != tt.code || got.Msg != tt.msg {
			t.Fatalf("Parse(%q) = %v/%q, want %v/%q", tt.in, got.Code, got.Msg, tt.code, tt.msg)
		}
	}
}
