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

package registry

import (
	"errors"
	"testing"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()
	if err := r.Register("a", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("a", 2); err == nil {
		t.Error("duplicate registration succeeded")
	}
	if err := r.Register("", 3); err == nil {
		t.Error("empty name accepted")
	}

	got, ok := r.Get("a")
	if !ok || got != 1 {
		t.Errorf("Get(a) = %d, %v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) reported presence")
	}
	if r.Count() != 1 {
		t.Errorf("count = %d", r.Count())
	}
}

func TestGetOrCreate(t *testing.T) {
	r := NewBaseRegistry[string]()
	creates := 0
	build := func() (string, error) {
		creates++
		return "built", nil
	}

	for i := 0; i < 3; i++ {
		got, err := r.GetOrCreate("idx", build)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "built" {
			t.Errorf("got %q", got)
		}
	}
	if creates != 1 {
		t.Errorf("create ran %d times, want 1", creates)
	}

	if _, err := r.GetOrCreate("bad", func() (string, error) {
		return "", errors.New("boom")
	}); err == nil {
		t.Error("create failure not propagated")
	}
	if _, ok := r.Get("bad"); ok {
		t.Error("failed create left an entry behind")
	}
}

func TestRemove(t *testing.T) {
	r := NewBaseRegistry[int]()
	_ = r.Register("a", 1)
	if err := r.Remove("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Remove("a"); err == nil {
		t.Error("removing a missing item succeeded")
	}
}
