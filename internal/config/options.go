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

// Package config parses the controller's environment-variable surface into
// a single Options struct and threads it through context.Context, the way
// the reference manager threads its options.Options.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/awslabs/operatorpkg/env"
)

// Options is the fully-resolved configuration for a controller process.
// Every variable in the external configuration table is a field here;
// nothing downstream reads os.Getenv directly.
type Options struct {
	GCPProjectID    string
	GCPZone         string
	GCPMachineType  string
	GCPNetwork      string
	GCPSubnet       string
	GCPImageProject string
	GCPImageName    string

	K8sAPIServer string

	GCPNodeCopyLabels []string

	// WorkloadGroup/Version/Resource/NodeNameField/StateField/AllocatedValue
	// configure which stateful-workload custom resource
	// CountAllocatedStatefulInstances counts, per SPEC_FULL.md §9's
	// resolution of spec.md's generic "stateful workload instance". The
	// defaults match the reference deployment's Agones GameServer kind,
	// but nothing downstream hardcodes that name.
	WorkloadGroup          string
	WorkloadVersion        string
	WorkloadResource       string
	WorkloadNodeNameField  string
	WorkloadStateField     string
	WorkloadAllocatedValue string

	NodeFlappingGrace      time.Duration
	MaxVMCreationAttempts  int
	ReconciliationInterval time.Duration
	OnpremRecoveryWait     time.Duration
	GameserverMaxWait      time.Duration

	LogLevel string

	// LockNamespace is the namespace the Distributed Lock's Lease objects
	// live in. Not part of the external configuration table in the spec;
	// defaulted for source fidelity with the reference implementation,
	// which hardcodes "default".
	LockNamespace string

	// HealthProbeAddr is the bind address for the /healthz endpoint.
	HealthProbeAddr string
}

// DefaultMaxVMCreationAttempts etc. are the documented defaults, exported
// so tests can assert against them without repeating magic numbers.
const (
	DefaultNodeFlappingGraceSeconds      = 30
	DefaultMaxVMCreationAttempts         = 3
	DefaultReconciliationIntervalSeconds = 60
	DefaultOnpremRecoveryWaitMinutes     = 10
	DefaultGameserverMaxWaitHours        = 3
	DefaultLockNamespace                 = "default"
	DefaultHealthProbeAddr               = ":8080"

	// DefaultWorkload* match the reference deployment's Agones GameServer
	// kind; operators running a different stateful workload override
	// these via environment variables.
	DefaultWorkloadGroup          = "agones.dev"
	DefaultWorkloadVersion        = "v1"
	DefaultWorkloadResource       = "gameservers"
	DefaultWorkloadNodeNameField  = "nodeName"
	DefaultWorkloadStateField     = "state"
	DefaultWorkloadAllocatedValue = "Allocated"
)

// FromEnvironment resolves Options from the process environment, applying
// the documented defaults for anything optional. Required variables that
// are unset return an error naming the first offender.
func FromEnvironment() (Options, error) {
	o := Options{
		GCPProjectID:    env.WithDefaultString("GCP_PROJECT_ID", ""),
		GCPZone:         env.WithDefaultString("GCP_ZONE", ""),
		GCPMachineType:  env.WithDefaultString("GCP_MACHINE_TYPE", ""),
		GCPNetwork:      env.WithDefaultString("GCP_NETWORK", ""),
		GCPSubnet:       env.WithDefaultString("GCP_SUBNET", ""),
		GCPImageProject: env.WithDefaultString("GCP_IMAGE_PROJECT", ""),
		GCPImageName:    env.WithDefaultString("GCP_IMAGE_NAME", ""),

		K8sAPIServer: env.WithDefaultString("K8S_API_SERVER", ""),

		GCPNodeCopyLabels: splitCommaList(env.WithDefaultString("GCP_NODE_COPY_LABELS", "")),

		WorkloadGroup:          env.WithDefaultString("WORKLOAD_GROUP", DefaultWorkloadGroup),
		WorkloadVersion:        env.WithDefaultString("WORKLOAD_VERSION", DefaultWorkloadVersion),
		WorkloadResource:       env.WithDefaultString("WORKLOAD_RESOURCE", DefaultWorkloadResource),
		WorkloadNodeNameField:  env.WithDefaultString("WORKLOAD_NODE_NAME_FIELD", DefaultWorkloadNodeNameField),
		WorkloadStateField:     env.WithDefaultString("WORKLOAD_STATE_FIELD", DefaultWorkloadStateField),
		WorkloadAllocatedValue: env.WithDefaultString("WORKLOAD_ALLOCATED_VALUE", DefaultWorkloadAllocatedValue),

		NodeFlappingGrace:      time.Duration(env.WithDefaultInt("NODE_FLAPPING_GRACE_SECONDS", DefaultNodeFlappingGraceSeconds)) * time.Second,
		MaxVMCreationAttempts:  env.WithDefaultInt("MAX_VM_CREATION_ATTEMPTS", DefaultMaxVMCreationAttempts),
		ReconciliationInterval: time.Duration(env.WithDefaultInt("RECONCILIATION_INTERVAL_SECONDS", DefaultReconciliationIntervalSeconds)) * time.Second,
		OnpremRecoveryWait:     time.Duration(env.WithDefaultInt("ONPREM_RECOVERY_WAIT_MINUTES", DefaultOnpremRecoveryWaitMinutes)) * time.Minute,
		GameserverMaxWait:      time.Duration(env.WithDefaultInt("GAMESERVER_MAX_WAIT_HOURS", DefaultGameserverMaxWaitHours)) * time.Hour,

		LogLevel: env.WithDefaultString("LOG_LEVEL", "info"),

		LockNamespace:   env.WithDefaultString("LOCK_NAMESPACE", DefaultLockNamespace),
		HealthProbeAddr: env.WithDefaultString("HEALTH_PROBE_ADDR", DefaultHealthProbeAddr),
	}

	required := map[string]string{
		"GCP_PROJECT_ID":    o.GCPProjectID,
		"GCP_ZONE":          o.GCPZone,
		"GCP_MACHINE_TYPE":  o.GCPMachineType,
		"GCP_NETWORK":       o.GCPNetwork,
		"GCP_SUBNET":        o.GCPSubnet,
		"GCP_IMAGE_PROJECT": o.GCPImageProject,
		"GCP_IMAGE_NAME":    o.GCPImageName,
		"K8S_API_SERVER":    o.K8sAPIServer,
	}
	for _, key := range []string{"GCP_PROJECT_ID", "GCP_ZONE", "GCP_MACHINE_TYPE", "GCP_NETWORK", "GCP_SUBNET", "GCP_IMAGE_PROJECT", "GCP_IMAGE_NAME", "K8S_API_SERVER"} {
		if required[key] == "" {
			return Options{}, fmt.Errorf("config: required environment variable %s is unset", key)
		}
	}
	return o, nil
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type contextKey struct{}

// Into returns a context carrying o, retrievable with FromContext.
func Into(ctx context.Context, o Options) context.Context {
	return context.WithValue(ctx, contextKey{}, o)
}

// FromContext returns the Options stored in ctx by Into. It panics if none
// is present, matching the reference manager's assumption that options are
// always injected before any component runs.
func FromContext(ctx context.Context) Options {
	o, ok := ctx.Value(contextKey{}).(Options)
	if !ok {
		panic("config: no Options in context")
	}
	return o
}
