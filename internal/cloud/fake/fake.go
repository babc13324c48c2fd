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

// Package fake provides an in-memory stand-in for internal/cloud.Gateway,
// the same role pkg/fake plays for pkg/providers/instance in the teacher:
// exercise controller logic against a cloud surface without a live
// project.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/hybridops/node-failover-operator/internal/cloud"
)

type instance struct {
	startupScript string
	labels        map[string]string
	status        string
}

// FakeGateway is a concurrency-safe in-memory InstanceGateway.
type FakeGateway struct {
	mu        sync.Mutex
	instances map[string]*instance

	// CreateInstanceError, if set, is returned by CreateInstance instead
	// of succeeding, for exercising the failure/backoff path.
	CreateInstanceError error
	// CreateInstanceCalls counts invocations, for asserting retry counts.
	CreateInstanceCalls int
}

// New returns an empty FakeGateway.
func New() *FakeGateway {
	return &FakeGateway{instances: map[string]*instance{}}
}

var _ cloud.InstanceGateway = (*FakeGateway)(nil)

func (f *FakeGateway) CreateInstance(_ context.Context, name, startupScript string, labels map[string]string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateInstanceCalls++
	if f.CreateInstanceError != nil {
		return false, f.CreateInstanceError
	}
	merged := map[string]string{}
	for k, v := range labels {
		merged[k] = v
	}
	merged[cloud.ManagedByLabel] = cloud.ManagedByValue
	f.instances[name] = &instance{startupScript: startupScript, labels: merged, status: "RUNNING"}
	return true, nil
}

func (f *FakeGateway) DeleteInstance(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.instances, name)
	return true, nil
}

func (f *FakeGateway) InstanceExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.instances[name]
	return ok, nil
}

func (f *FakeGateway) GetInstanceStatus(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[name]
	if !ok {
		return "", nil
	}
	return inst.status, nil
}

func (f *FakeGateway) ListManagedInstances(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name, inst := range f.instances {
		if inst.labels[cloud.ManagedByLabel] == cloud.ManagedByValue {
			names = append(names, name)
		}
	}
	return names, nil
}

// SetStatus is a test hook letting specs simulate an instance reaching a
// particular GCE status without a real operation poll.
func (f *FakeGateway) SetStatus(name, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[name]
	if !ok {
		return fmt.Errorf("fake: instance %s does not exist", name)
	}
	inst.status = status
	return nil
}
