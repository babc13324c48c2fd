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

package fake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hybridops/node-failover-operator/internal/cloud/fake"
)

func TestFakeGateway_CreateThenList(t *testing.T) {
	ctx := context.Background()
	gw := fake.New()

	ok, err := gw.CreateInstance(ctx, "cloud-temp-worker-01-123", "script", map[string]string{"onprem-node": "worker-01"})
	if err != nil || !ok {
		t.Fatalf("CreateInstance() = %v, %v", ok, err)
	}

	names, err := gw.ListManagedInstances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "cloud-temp-worker-01-123" {
		t.Errorf("ListManagedInstances() = %v", names)
	}

	exists, err := gw.InstanceExists(ctx, "cloud-temp-worker-01-123")
	if err != nil || !exists {
		t.Errorf("InstanceExists() = %v, %v", exists, err)
	}
}

func TestFakeGateway_CreateInstanceError(t *testing.T) {
	ctx := context.Background()
	gw := fake.New()
	gw.CreateInstanceError = errors.New("quota exceeded")

	ok, err := gw.CreateInstance(ctx, "n1", "script", nil)
	if ok || err == nil {
		t.Fatalf("expected CreateInstance to fail, got %v, %v", ok, err)
	}
	if gw.CreateInstanceCalls != 1 {
		t.Errorf("CreateInstanceCalls = %d, want 1", gw.CreateInstanceCalls)
	}
}

func TestFakeGateway_DeleteInstance_AbsentIsSuccess(t *testing.T) {
	gw := fake.New()
	ok, err := gw.DeleteInstance(context.Background(), "does-not-exist")
	if err != nil || !ok {
		t.Fatalf("deleting absent instance should succeed, got %v, %v", ok, err)
	}
}
