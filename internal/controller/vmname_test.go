/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

var vmNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

func TestSanitizeNodeName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Worker-01", "worker-01"},
		{"worker_02", "worker-02"},
		{"WORKER.03!!", "worker03"},
		{"9worker", "node-9worker"},
		{"___", "node"},
	}
	for _, tc := range cases {
		got := sanitizeNodeName(tc.name)
		if got != tc.want {
			t.Errorf("sanitizeNodeName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestGenerateVMName_MatchesGCEPattern(t *testing.T) {
	at := time.Unix(1700000000, 0)
	names := []string{
		generateVMName("worker-01", at),
		generateVMName("Some_Very_Long-Node-Name-That-Keeps-Going-And-Going-And-Going-Forever", at),
		generateVMName("9-starts-with-digit", at),
	}
	for _, name := range names {
		if !vmNamePattern.MatchString(name) {
			t.Errorf("generateVMName produced %q, which does not match %s", name, vmNamePattern)
		}
		if len(name) > maxVMNameLength {
			t.Errorf("generateVMName produced %q of length %d, want <= %d", name, len(name), maxVMNameLength)
		}
	}
}

func TestGenerateVMName_TruncatesSanitizedSegmentNotTimestamp(t *testing.T) {
	at := time.Unix(1700000000, 0)
	longName := strings.Repeat("abcde-", 20)
	name := generateVMName(longName, at)
	if !strings.HasSuffix(name, "-1700000000") {
		t.Errorf("generateVMName(%q) = %q, want suffix -1700000000 preserved", longName, name)
	}
}

func TestVmNamePrefixFor(t *testing.T) {
	got := vmNamePrefixFor("Worker-01")
	want := "cloud-temp-worker-01-"
	if got != want {
		t.Errorf("vmNamePrefixFor() = %q, want %q", got, want)
	}
}
