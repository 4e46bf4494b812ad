// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errorx carries error codes across packages and between parties.
// A coded error prints as a JSON object, so the code survives a trip through
// a plain text error on the wire.
package errorx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCodeInternal is the code of errors raised without one
const ErrCodeInternal = "CS0001"

// Error is an error with a code
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	cause error
}

func (e *Error) Error() string {
	s, _ := json.Marshal(e)
	return string(s)
}

// Unwrap returns the error NewCode was given, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// New returns an error with code and a formatted message
func New(code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewCode recodes err. Its text is appended to the message, and a code it
// may carry is replaced by code.
func NewCode(err error, code, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...) + ": " + err.Error(),
		cause:   err,
	}
}

// Wrap adds context to err without touching its code
func Wrap(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ParseAndWrap rebuilds an error reported by the peer under its own code,
// prefixed with a local message
func ParseAndWrap(err error, format string, args ...interface{}) error {
	code, message := Parse(err)
	return New(code, "%s: %s", fmt.Sprintf(format, args...), message)
}

// Is tells whether err carries code
func Is(err error, code string) bool {
	if err == nil {
		return false
	}
	c, _ := Parse(err)
	return c == code
}

// Parse returns the code and message of err. The first *Error of the chain
// wins, then the text of err is read as JSON, anything else is internal.
func Parse(err error) (code, message string) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}
	var peer Error
	if json.Unmarshal([]byte(err.Error()), &peer) == nil && peer.Code != "" {
		return peer.Code, peer.Message
	}
	return ErrCodeInternal, err.Error()
}

// Internal codes err, or a bare message when err is nil, as internal
func Internal(err error, format string, args ...interface{}) error {
	if err == nil {
		return New(ErrCodeInternal, format, args...)
	}
	return NewCode(err, ErrCodeInternal, format, args...)
}
