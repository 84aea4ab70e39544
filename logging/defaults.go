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
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

var defaultLoggingOnce = &sync.Once{}

// ConfigureDefaultLogging sets up the process wide zerolog defaults the SDK
// expects: UTC RFC3339Nano timestamps, "err" as the error field name, and
// stack trace marshaling for github.com/pkg/errors values. The global level
// comes from LOG_LEVEL when set, else defaults to info when DOCKV_ENV is
// "production" and debug otherwise.
//
// Applications embedding the SDK that configure zerolog themselves can skip
// this; component loggers build on whatever log.Logger is active.
func ConfigureDefaultLogging() {
	defaultLoggingOnce.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		// always log in UTC, with accurate timestamps
		zerolog.TimestampFunc = func() time.Time {
			return time.Now().UTC()
		}
		zerolog.TimeFieldFormat = time.RFC3339Nano
		zerolog.ErrorFieldName = "err"

		levelStr := os.Getenv("LOG_LEVEL")
		if levelStr != "" {
			levelStr = strings.ToLower(levelStr)
			level, err := zerolog.ParseLevel(levelStr)
			if err != nil {
				panic(err)
			}
			zerolog.SetGlobalLevel(level)
		} else {
			if os.Getenv("DOCKV_ENV") == "production" {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		}

		log.Logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()

		log.Info().Msg("Logging initialized")
	})
}
