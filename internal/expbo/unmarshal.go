// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package expbo reads exponential backoff settings from a compact string form
// so that a whole retry policy fits in one config value.
package expbo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

// Parse returns a new ExponentialBackOff with the library defaults, overridden
// by the fields present in s. See UnmarshalExponentialBackOff for the format.
// The words "none" and "" yield a nil backoff, meaning no retries.
func Parse(s string) (*backoff.ExponentialBackOff, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return nil, nil
	}
	b := backoff.NewExponentialBackOff()
	if err := UnmarshalExponentialBackOff(s, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UnmarshalExponentialBackOff populates ExponentialBackOff structure parsing strings of format:
// "[InitInterval MaxInterval] *Multiplier ~RandomizationFactor <MaxElapsedTime"
// Intervals are in seconds. Fields absent from s keep their current value.
//
// Example: "[0.250 30] *1.5 ~0.33 <7200"
func UnmarshalExponentialBackOff(s string, b *backoff.ExponentialBackOff) error {
	seconds := func(word, trim string, set func(time.Duration)) error {
		v, err := strconv.ParseFloat(trim, 64)
		if err != nil {
			return errors.Wrapf(err, "cannot parse %q", word)
		}
		set(time.Duration(v * float64(time.Second)))
		return nil
	}
	factor := func(word, trim string, set func(float64)) error {
		v, err := strconv.ParseFloat(trim, 64)
		if err != nil {
			return errors.Wrapf(err, "cannot parse %q", word)
		}
		set(v)
		return nil
	}

	for _, word := range strings.Fields(s) {
		var err error
		switch {
		case strings.HasPrefix(word, "[") && strings.HasSuffix(word, "]"):
			return fmt.Errorf(`"%s" needs a space between InitInterval and MaxInterval`, word)
		case strings.HasPrefix(word, "["):
			err = seconds(word, strings.TrimPrefix(word, "["), func(d time.Duration) { b.InitialInterval = d })
		case strings.HasSuffix(word, "]"):
			err = seconds(word, strings.TrimSuffix(word, "]"), func(d time.Duration) { b.MaxInterval = d })
		case strings.HasPrefix(word, "*"):
			err = factor(word, strings.TrimPrefix(word, "*"), func(f float64) { b.Multiplier = f })
		case strings.HasPrefix(word, "~"):
			err = factor(word, strings.TrimPrefix(word, "~"), func(f float64) { b.RandomizationFactor = f })
		case strings.HasPrefix(word, "<"):
			err = seconds(word, strings.TrimPrefix(word, "<"), func(d time.Duration) { b.MaxElapsedTime = d })
		default:
			return fmt.Errorf(`unexpected word "%s"`, word)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
