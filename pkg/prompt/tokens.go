// Copyright 2025 Kadir Pekel
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

// Package prompt assembles grounded generation prompts under a model's
// context window.
package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator estimates the token count of a text for one model.
type Estimator interface {
	Estimate(text string) int
}

// CharsEstimator approximates tokens as len(text)/CharsPerToken. The
// divisor is a rough heuristic and deliberately configurable.
type CharsEstimator struct {
	CharsPerToken int
}

func (e CharsEstimator) Estimate(text string) int {
	divisor := e.CharsPerToken
	if divisor <= 0 {
		divisor = 3
	}
	return len(text) / divisor
}

// TiktokenEstimator counts tokens with the model's BPE encoding.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

func (e *TiktokenEstimator) Estimate(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewEstimator returns the best available estimator for a model: the
// model's tiktoken encoding when one is known, else the chars-per-token
// heuristic.
func NewEstimator(model string, charsPerToken int) Estimator {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		if enc == nil {
			return CharsEstimator{CharsPerToken: charsPerToken}
		}
		return &TiktokenEstimator{encoding: enc}
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Negative cache; unknown models stay on the heuristic.
		encodingCache[model] = nil
		return CharsEstimator{CharsPerToken: charsPerToken}
	}
	encodingCache[model] = enc
	return &TiktokenEstimator{encoding: enc}
}
