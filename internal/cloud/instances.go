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

package cloud

import "context"

// InstanceGateway is the Cloud Gateway surface the Failover Controller and
// Reconciler depend on. *Gateway implements it against live GCE; tests use
// internal/cloud/fake.FakeGateway instead, the same split the teacher
// draws between pkg/aws.AWSClient and pkg/fake.
type InstanceGateway interface {
	CreateInstance(ctx context.Context, name, startupScript string, labels map[string]string) (bool, error)
	DeleteInstance(ctx context.Context, name string) (bool, error)
	InstanceExists(ctx context.Context, name string) (bool, error)
	GetInstanceStatus(ctx context.Context, name string) (string, error)
	ListManagedInstances(ctx context.Context) ([]string, error)
}

var _ InstanceGateway = (*Gateway)(nil)
