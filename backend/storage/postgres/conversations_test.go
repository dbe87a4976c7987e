// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package postgres

import (
	"testing"
)

// The unique constraint on conversations assumes both orderings of a
// pair of distinct user ids normalize to the same row key. Identical
// pairs never reach this layer; the handlers reject them first.
func TestOrderedPair(t *testing.T) {
	cases := []struct {
		a, b         string
		want1, want2 string
	}{
		{"alice", "bob", "alice", "bob"},
		{"bob", "alice", "alice", "bob"},
	}
	for _, tc := range cases {
		got1, got2 := orderedPair(tc.a, tc.b)
		if got1 != tc.want1 || got2 != tc.want2 {
			t.Errorf("orderedPair(%q, %q) = %q, %q", tc.a, tc.b, got1, got2)
		}
	}
}
