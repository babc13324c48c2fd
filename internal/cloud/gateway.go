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

// Package cloud is the Cloud Gateway: a thin typed wrapper around the GCE
// Instances API, one method per operation, the same shape the teacher
// wraps the EC2 SDK in (pkg/aws/awsclient.go) with the underlying SDK
// swapped for cloud.google.com/go/compute/apiv1 since this system's cloud
// substrate is GCP.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/proto"
)

const (
	bootDiskSizeGB      = 40
	operationPollPeriod = 2 * time.Second
	defaultOperationTimeout = 300 * time.Second

	// ManagedByLabel is the system label every VM this controller creates
	// carries, and the filter ListManagedInstances scopes by.
	ManagedByLabel = "managed-by"
	// ManagedByValue is ManagedByLabel's value.
	ManagedByValue = "node-failover-operator"
)

// Config is the fixed substrate configuration for substitute VMs,
// resolved once from the environment at startup.
type Config struct {
	ProjectID    string
	Zone         string
	MachineType  string
	Network      string
	Subnet       string
	ImageProject string
	ImageName    string
}

// Gateway wraps the GCE Instances and ZoneOperations clients.
type Gateway struct {
	instances *compute.InstancesClient
	zoneOps   *compute.ZoneOperationsClient
	cfg       Config
}

// New constructs a Gateway from already-built GCE clients (built by the
// caller via compute.NewInstancesRESTClient / compute.NewZoneOperationsRESTClient,
// kept out of this package's scope the way cluster-API transport
// construction is kept out of the Cluster Gateway).
func New(instances *compute.InstancesClient, zoneOps *compute.ZoneOperationsClient, cfg Config) *Gateway {
	return &Gateway{instances: instances, zoneOps: zoneOps, cfg: cfg}
}

// CreateInstance creates a VM with a 40 GiB SSD boot disk from the
// configured source image, a single network interface on the configured
// VPC/subnet, the startup script attached via instance metadata, nested
// virtualization enabled, and labels merged with the managed-by system
// label. It blocks until the provisioning operation reaches a terminal
// state and returns true on success.
func (g *Gateway) CreateInstance(ctx context.Context, name, startupScript string, labels map[string]string) (bool, error) {
	merged := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		merged[k] = v
	}
	merged[ManagedByLabel] = ManagedByValue

	sourceImage := fmt.Sprintf("projects/%s/global/images/%s", g.cfg.ImageProject, g.cfg.ImageName)
	diskType := fmt.Sprintf("zones/%s/diskTypes/pd-ssd", g.cfg.Zone)
	machineType := fmt.Sprintf("zones/%s/machineTypes/%s", g.cfg.Zone, g.cfg.MachineType)

	instance := &computepb.Instance{
		Name:        proto.String(name),
		MachineType: proto.String(machineType),
		Disks: []*computepb.AttachedDisk{{
			Boot:       proto.Bool(true),
			AutoDelete: proto.Bool(true),
			InitializeParams: &computepb.AttachedDiskInitializeParams{
				SourceImage: proto.String(sourceImage),
				DiskSizeGb:  proto.Int64(bootDiskSizeGB),
				DiskType:    proto.String(diskType),
			},
		}},
		NetworkInterfaces: []*computepb.NetworkInterface{{
			Network:    proto.String(g.cfg.Network),
			Subnetwork: proto.String(g.cfg.Subnet),
		}},
		Metadata: &computepb.Metadata{
			Items: []*computepb.Items{{
				Key:   proto.String("startup-script"),
				Value: proto.String(startupScript),
			}},
		},
		AdvancedMachineFeatures: &computepb.AdvancedMachineFeatures{
			EnableNestedVirtualization: proto.Bool(true),
		},
		Labels: merged,
	}

	op, err := g.instances.Insert(ctx, &computepb.InsertInstanceRequest{
		Project:          g.cfg.ProjectID,
		Zone:             g.cfg.Zone,
		InstanceResource: instance,
	})
	if err != nil {
		return false, fmt.Errorf("cloud: inserting instance %s: %w", name, err)
	}
	if err := g.awaitOperation(ctx, op.Proto().GetName(), defaultOperationTimeout); err != nil {
		return false, fmt.Errorf("cloud: waiting for instance %s creation: %w", name, err)
	}
	return true, nil
}

// DeleteInstance deletes the named instance, idempotent on not-found.
func (g *Gateway) DeleteInstance(ctx context.Context, name string) (bool, error) {
	op, err := g.instances.Delete(ctx, &computepb.DeleteInstanceRequest{
		Project:  g.cfg.ProjectID,
		Zone:     g.cfg.Zone,
		Instance: name,
	})
	if err != nil {
		if isNotFound(err) {
			return true, nil
		}
		return false, fmt.Errorf("cloud: deleting instance %s: %w", name, err)
	}
	if err := g.awaitOperation(ctx, op.Proto().GetName(), defaultOperationTimeout); err != nil {
		return false, fmt.Errorf("cloud: waiting for instance %s deletion: %w", name, err)
	}
	return true, nil
}

// InstanceExists reports whether the named instance currently exists.
func (g *Gateway) InstanceExists(ctx context.Context, name string) (bool, error) {
	_, err := g.instances.Get(ctx, &computepb.GetInstanceRequest{
		Project:  g.cfg.ProjectID,
		Zone:     g.cfg.Zone,
		Instance: name,
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("cloud: getting instance %s: %w", name, err)
	}
	return true, nil
}

// GetInstanceStatus returns the instance's status string, or "" if it
// does not exist.
func (g *Gateway) GetInstanceStatus(ctx context.Context, name string) (string, error) {
	inst, err := g.instances.Get(ctx, &computepb.GetInstanceRequest{
		Project:  g.cfg.ProjectID,
		Zone:     g.cfg.Zone,
		Instance: name,
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("cloud: getting instance %s status: %w", name, err)
	}
	return inst.GetStatus(), nil
}

// ListManagedInstances returns the names of instances carrying the
// managed-by system label.
func (g *Gateway) ListManagedInstances(ctx context.Context) ([]string, error) {
	filter := fmt.Sprintf("labels.%s=%s", ManagedByLabel, ManagedByValue)
	it := g.instances.List(ctx, &computepb.ListInstancesRequest{
		Project: g.cfg.ProjectID,
		Zone:    g.cfg.Zone,
		Filter:  proto.String(filter),
	})
	var names []string
	for {
		inst, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cloud: listing managed instances: %w", err)
		}
		names = append(names, inst.GetName())
	}
	return names, nil
}

// awaitOperation polls the zone operation every 2s until it reaches a
// terminal state, the operation reports an error, or timeout elapses.
func (g *Gateway) awaitOperation(ctx context.Context, opName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(operationPollPeriod)
	defer ticker.Stop()

	for {
		op, err := g.zoneOps.Get(ctx, &computepb.GetZoneOperationRequest{
			Project:   g.cfg.ProjectID,
			Zone:      g.cfg.Zone,
			Operation: opName,
		})
		if err != nil {
			return fmt.Errorf("polling operation %s: %w", opName, err)
		}
		if op.GetStatus() == computepb.Operation_DONE {
			if op.GetError() != nil && len(op.GetError().GetErrors()) > 0 {
				return fmt.Errorf("operation %s failed: %s", opName, op.GetError().GetErrors()[0].GetMessage())
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("operation %s did not complete within %s", opName, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CreatedAtLabelValue renders t as the canonical created-at label value:
// Unix epoch seconds, per SPEC_FULL.md §9's resolution of the original's
// inconsistent date-format open question.
func CreatedAtLabelValue(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
