// Copyright (c) 2021 6 River Systems
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetRedaction(t *testing.T) {
	t.Helper()
	old := GetRedactionLevel()
	t.Cleanup(func() { SetRedactionLevel(old) })
}

func TestUserData_Redaction(t *testing.T) {
	resetRedaction(t)

	SetRedactionLevel(RedactNone)
	assert.Equal(t, "airport_1254", UserData("airport_1254"))

	SetRedactionLevel(RedactPartial)
	assert.Equal(t, "<ud>airport_1254</ud>", UserData("airport_1254"))
	assert.Equal(t, "localhost:11210", MetaData("localhost:11210"),
		"partial redaction leaves infrastructure metadata readable")

	SetRedactionLevel(RedactFull)
	assert.Equal(t, "<ud>airport_1254</ud>", UserData("airport_1254"))
	assert.Equal(t, "<md>localhost:11210</md>", MetaData("localhost:11210"))
}

func TestParseRedactionLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    RedactionLevel
		wantErr bool
	}{
		{"none", RedactNone, false},
		{"", RedactNone, false},
		{"partial", RedactPartial, false},
		{"full", RedactFull, false},
		{"verbose", RedactNone, true},
	}
	for _, tt := range tests {
		t.Run("level "+tt.in, func(t *testing.T) {
			got, err := ParseRedactionLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRedactionLevel_String(t *testing.T) {
	assert.Equal(t, "none", RedactNone.String())
	assert.Equal(t, "partial", RedactPartial.String())
	assert.Equal(t, "full", RedactFull.String())
	assert.Equal(t, "redaction(9)", RedactionLevel(9).String())
}
