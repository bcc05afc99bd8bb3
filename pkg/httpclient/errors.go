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

package httpclient

import "fmt"

// RetryableError reports a request that stayed transiently broken through
// the whole retry budget. Callers may re-submit the work later.
type RetryableError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error { return e.Err }

// StatusError converts a terminal non-2xx status and the message read from
// its body into an error. Statuses the retry loop treats as transient come
// back as a *RetryableError so callers can re-submit the work later.
func StatusError(statusCode int, message string) error {
	if DefaultStrategy(statusCode) != NoRetry {
		return &RetryableError{StatusCode: statusCode, Message: message}
	}
	return fmt.Errorf("HTTP %d: %s", statusCode, message)
}
