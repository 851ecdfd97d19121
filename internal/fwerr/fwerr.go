// Package fwerr defines the error conditions surfaced to RPC callers.
//
// Every condition carries a numeric Code whose name is part of the wire
// contract: on the bus an error is reported as "<CODE>: <message>".
package fwerr

import (
	"errors"
	"fmt"
	"strings"
)

type Code int

const (
	AlreadyEnabled   Code = 11
	NotEnabled       Code = 12
	CommandFailed    Code = 13
	ZoneConflict     Code = 18
	BuiltinZone      Code = 23
	BuiltinService   Code = 24
	BuiltinIcmpType  Code = 25
	NameConflict     Code = 26
	AccessDenied     Code = 29
	BuiltinIPSet     Code = 33
	InvalidService   Code = 101
	InvalidPort      Code = 102
	InvalidProtocol  Code = 103
	InvalidInterface Code = 104
	InvalidAddr      Code = 105
	InvalidForward   Code = 106
	InvalidIcmpType  Code = 107
	InvalidTable     Code = 108
	InvalidChain     Code = 109
	InvalidTarget    Code = 110
	InvalidIPv       Code = 111
	InvalidZone      Code = 112
	InvalidProperty  Code = 113
	InvalidValue     Code = 114
	InvalidObject    Code = 115
	InvalidName      Code = 116
	InvalidFilename  Code = 117
	InvalidType      Code = 119
	InvalidMark      Code = 127
	InvalidContext   Code = 128
	InvalidCommand   Code = 129
	InvalidUser      Code = 130
	InvalidUID       Code = 131
	InvalidIPSet     Code = 135
	InvalidEntry     Code = 136
	InvalidOption    Code = 137
	ParseError       Code = 28
	UnknownError     Code = 254
)

var codeNames = map[Code]string{
	AlreadyEnabled:   "ALREADY_ENABLED",
	NotEnabled:       "NOT_ENABLED",
	CommandFailed:    "COMMAND_FAILED",
	ZoneConflict:     "ZONE_CONFLICT",
	BuiltinZone:      "BUILTIN_ZONE",
	BuiltinService:   "BUILTIN_SERVICE",
	BuiltinIcmpType:  "BUILTIN_ICMPTYPE",
	NameConflict:     "NAME_CONFLICT",
	AccessDenied:     "ACCESS_DENIED",
	BuiltinIPSet:     "BUILTIN_IPSET",
	InvalidService:   "INVALID_SERVICE",
	InvalidPort:      "INVALID_PORT",
	InvalidProtocol:  "INVALID_PROTOCOL",
	InvalidInterface: "INVALID_INTERFACE",
	InvalidAddr:      "INVALID_ADDR",
	InvalidForward:   "INVALID_FORWARD",
	InvalidIcmpType:  "INVALID_ICMPTYPE",
	InvalidTable:     "INVALID_TABLE",
	InvalidChain:     "INVALID_CHAIN",
	InvalidTarget:    "INVALID_TARGET",
	InvalidIPv:       "INVALID_IPV",
	InvalidZone:      "INVALID_ZONE",
	InvalidProperty:  "INVALID_PROPERTY",
	InvalidValue:     "INVALID_VALUE",
	InvalidObject:    "INVALID_OBJECT",
	InvalidName:      "INVALID_NAME",
	InvalidFilename:  "INVALID_FILENAME",
	InvalidType:      "INVALID_TYPE",
	InvalidMark:      "INVALID_MARK",
	InvalidContext:   "INVALID_CONTEXT",
	InvalidCommand:   "INVALID_COMMAND",
	InvalidUser:      "INVALID_USER",
	InvalidUID:       "INVALID_UID",
	InvalidIPSet:     "INVALID_IPSET",
	InvalidEntry:     "INVALID_ENTRY",
	InvalidOption:    "INVALID_OPTION",
	ParseError:       "PARSE_ERROR",
	UnknownError:     "UNKNOWN_ERROR",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE_%d", int(c))
}

// Error is a coded failure. Msg names the offending value.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code, so errors.Is works against
// the values returned by New with an empty message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Msg == "" && t.Err == nil
}

func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// UnknownError.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return UnknownError
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// Parse reverses Error.Error for messages received over the bus. Text
// without a known code prefix yields an UnknownError carrying the text.
func Parse(text string) *Error {
	name, msg, _ := strings.Cut(text, ":")
	for code, n := range codeNames {
		if n == name {
			return &Error{Code: code, Msg: strings.TrimSpace(msg)}
		}
	}
	return &Error{Code: UnknownError, Msg: text}
}
