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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	compute "cloud.google.com/go/compute/apiv1"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"go.uber.org/zap"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	failoverv1 "github.com/hybridops/node-failover-operator/api/v1"
	"github.com/hybridops/node-failover-operator/internal/cloud"
	"github.com/hybridops/node-failover-operator/internal/cluster"
	"github.com/hybridops/node-failover-operator/internal/config"
	"github.com/hybridops/node-failover-operator/internal/controller"
	"github.com/hybridops/node-failover-operator/internal/healthz"
	"github.com/hybridops/node-failover-operator/internal/lock"
	"github.com/hybridops/node-failover-operator/internal/reconciler"
	"github.com/hybridops/node-failover-operator/internal/router"
	"github.com/hybridops/node-failover-operator/internal/store"
)

const crdName = failoverv1.Plural + "." + failoverv1.Group

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(apiextensionsv1.AddToScheme(scheme))
	utilruntime.Must(failoverv1.AddToScheme(scheme))
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := config.FromEnvironment()
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}

	zapLog, err := newZapLogger(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = zapLog.Sync() }()
	logger := zapr.NewLogger(zapLog)
	log.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = config.Into(ctx, opts)
	ctx = log.IntoContext(ctx, logger)

	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("loading kubeconfig: %w", err)
	}

	mgr, err := ctrl.NewManager(restCfg, ctrl.Options{
		Scheme:                 scheme,
		HealthProbeBindAddress: "0", // liveness is served by internal/healthz, not the manager's default.
		LeaderElection:         true,
		LeaderElectionID:       "node-failover-operator-leader",
	})
	if err != nil {
		return fmt.Errorf("constructing manager: %w", err)
	}

	if err := checkCRDInstalled(ctx, mgr.GetAPIReader()); err != nil {
		logger.Error(err, "NodeFailover CRD readiness check failed; continuing, but reconciliation will fail until it is installed")
	}

	dynClient, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("constructing dynamic client: %w", err)
	}

	instancesClient, err := compute.NewInstancesRESTClient(ctx)
	if err != nil {
		return fmt.Errorf("constructing GCE instances client: %w", err)
	}
	zoneOpsClient, err := compute.NewZoneOperationsRESTClient(ctx)
	if err != nil {
		return fmt.Errorf("constructing GCE zone operations client: %w", err)
	}

	cloudGW := cloud.New(instancesClient, zoneOpsClient, cloud.Config{
		ProjectID:    opts.GCPProjectID,
		Zone:         opts.GCPZone,
		MachineType:  opts.GCPMachineType,
		Network:      opts.GCPNetwork,
		Subnet:       opts.GCPSubnet,
		ImageProject: opts.GCPImageProject,
		ImageName:    opts.GCPImageName,
	})

	workload := cluster.WorkloadSelector{
		Group:          opts.WorkloadGroup,
		Version:        opts.WorkloadVersion,
		Resource:       opts.WorkloadResource,
		NodeNameField:  opts.WorkloadNodeNameField,
		StateField:     opts.WorkloadStateField,
		AllocatedValue: opts.WorkloadAllocatedValue,
	}
	clusterGW := cluster.New(mgr.GetClient(), dynClient, workload)
	recordStore := store.New(mgr.GetClient())
	identity := controllerIdentity()
	locker := lock.New(mgr.GetClient(), opts.LockNamespace, identity)

	eventRouter := router.New(mgr.GetClient(), clusterGW, opts.GCPNodeCopyLabels)
	if err := eventRouter.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("registering event router: %w", err)
	}

	failoverController := controller.New(mgr.GetClient(), recordStore, clusterGW, cloudGW, locker)
	if err := failoverController.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("registering failover controller: %w", err)
	}

	sweep := reconciler.New(mgr.GetClient(), recordStore, clusterGW, cloudGW)
	if err := mgr.Add(sweep); err != nil {
		return fmt.Errorf("registering reconciler sweep: %w", err)
	}

	probe := healthz.New(opts.HealthProbeAddr)
	if err := mgr.Add(probe); err != nil {
		return fmt.Errorf("registering healthz server: %w", err)
	}

	logger.Info("starting node-failover-operator", "identity", identity)
	return mgr.Start(ctx)
}

// controllerIdentity resolves this process's Distributed Lock holder
// identity from HOSTNAME (the pod name in any standard Kubernetes
// deployment), falling back to a fresh UUID for local/out-of-cluster runs
// where HOSTNAME may be absent or shared.
func controllerIdentity() string {
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	return uuid.NewString()
}

// checkCRDInstalled fails loudly (but non-fatally) if the NodeFailover CRD
// isn't registered with the API server, the same pre-flight check the
// reference integration suite performs by reading the CustomResourceDefinition
// object directly.
func checkCRDInstalled(ctx context.Context, c client.Reader) error {
	crd := &apiextensionsv1.CustomResourceDefinition{}
	return c.Get(ctx, client.ObjectKey{Name: crdName}, crd)
}

func newZapLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var zl zap.AtomicLevel
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		zl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = zl
	return cfg.Build()
}
