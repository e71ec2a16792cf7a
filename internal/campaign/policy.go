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

package campaign

import (
	"fmt"
	"time"

	"automl.dev/advisor/internal/config"
	"github.com/pkg/errors"
)

// Condition decides when a campaign is done.
type Condition int

const (
	// FixedCount completes after Target accepted submissions.
	FixedCount Condition = iota
	// ElapsedTime completes once Target seconds have passed since creation.
	ElapsedTime
	// Unbounded never completes on its own.
	Unbounded
)

func (c Condition) String() string {
	switch c {
	case FixedCount:
		return "fixedCount"
	case ElapsedTime:
		return "elapsedTime"
	case Unbounded:
		return "unbounded"
	}
	return fmt.Sprintf("Condition(%d)", int(c))
}

// ParseCondition accepts the condition names and their legacy spellings
// (n_recs, time, continuous).
func ParseCondition(s string) (Condition, error) {
	switch s {
	case "fixedCount", "n_recs":
		return FixedCount, nil
	case "elapsedTime", "time":
		return ElapsedTime, nil
	case "unbounded", "continuous":
		return Unbounded, nil
	}
	return 0, errors.Errorf("unknown termination condition %q (should be one of -- fixedCount|elapsedTime|unbounded)", s)
}

// Policy is the termination policy a campaign is created with.
type Policy struct {
	Condition Condition
	// Target is a number of submissions for FixedCount and a number of
	// seconds for ElapsedTime. Unbounded ignores it.
	Target float64
	// BatchSize is the number of recommendations requested at once by
	// Unbounded campaigns. The other conditions request one at a time.
	BatchSize int
}

// Normalize returns p with a FixedCount target below one turned into
// Unbounded and a batch size of at least one.
func (p Policy) Normalize() Policy {
	if p.Condition == FixedCount && p.Target < 1 {
		p.Condition = Unbounded
	}
	if p.BatchSize < 1 {
		p.BatchSize = 1
	}
	return p
}

// Validate reports policies that can not be run.
func (p Policy) Validate() error {
	if p.Condition == ElapsedTime && p.Target <= 0 {
		return errors.Errorf("elapsedTime termination needs a positive target, got %v", p.Target)
	}
	return nil
}

// Duration returns the ElapsedTime target.
func (p Policy) Duration() time.Duration {
	return time.Duration(p.Target * float64(time.Second))
}

func (p Policy) String() string {
	switch p.Condition {
	case Unbounded:
		return fmt.Sprintf("%s (batch %d)", p.Condition, p.BatchSize)
	case ElapsedTime:
		return fmt.Sprintf("%s %s", p.Condition, p.Duration())
	}
	return fmt.Sprintf("%s %d", p.Condition, int(p.Target))
}

// PolicyFromConfig reads the default policy of new campaigns.
func PolicyFromConfig(cfg config.View) (Policy, error) {
	cond, err := ParseCondition(cfg.GetString("advisor.termination.condition"))
	if err != nil {
		return Policy{}, err
	}
	p := Policy{
		Condition: cond,
		Target:    cfg.GetFloat64("advisor.termination.target"),
		BatchSize: cfg.GetInt("advisor.batchSize"),
	}.Normalize()
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
