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

package errorx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const codeShape = "CS0011"

func TestParse(t *testing.T) {
	err := New(codeShape, "rows %d != %d", 2, 3)
	code, message := Parse(err)
	require.Equal(t, codeShape, code)
	require.Equal(t, "rows 2 != 3", message)

	// wrapping keeps the code
	err2 := Wrap(err, "forward round %d", 1)
	code, message = Parse(err2)
	require.Equal(t, codeShape, code)
	require.Equal(t, "rows 2 != 3", message)
	require.True(t, Is(err2, codeShape))

	// errors received as plain text from the peer
	err3 := errors.New(err.Error())
	code, _ = Parse(err3)
	require.Equal(t, codeShape, code)

	err4 := NewCode(errors.New("eof"), "CS0014", "push failed")
	code, message = Parse(err4)
	require.Equal(t, "CS0014", code)
	require.Equal(t, "push failed: eof", message)

	nErr := ParseAndWrap(errors.New(`{"code":"XXX","message":"123"}`), "peer said")
	code, message = Parse(nErr)
	require.Equal(t, "XXX", code)
	require.Equal(t, "peer said: 123", message)
}

func TestInternal(t *testing.T) {
	code, _ := Parse(errors.New("boom"))
	require.Equal(t, ErrCodeInternal, code)

	require.True(t, Is(Internal(nil, "x"), ErrCodeInternal))
	require.True(t, Is(Internal(errors.New("y"), "x"), ErrCodeInternal))
	require.False(t, Is(nil, ErrCodeInternal))
}

func TestNewCodeKeepsCause(t *testing.T) {
	err := NewCode(context.DeadlineExceeded, "CS0013", "waiting for %s", "r0/za")
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.True(t, Is(err, "CS0013"))
	require.JSONEq(t, `{"code":"CS0013","message":"waiting for r0/za: context deadline exceeded"}`, err.Error())

	// a percent sign in the context is not read as a verb
	wrapped := Wrap(err, "at %d%%", 50)
	require.Equal(t, "at 50%: "+err.Error(), wrapped.Error())
	require.True(t, errors.Is(wrapped, context.DeadlineExceeded))
}
