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

// Package healthz serves spec.md §6's liveness endpoint: HTTP GET
// /healthz returns 200 for as long as the controller's manager loop is
// running, the same shape the teacher wires via
// manager.Options.HealthProbeBindAddress in cmd/controller/main.go,
// implemented directly here since this controller's liveness contract
// (a single unconditional 200, no readiness gate) is simpler than what
// controller-runtime's AddHealthzCheck machinery is built for.
package healthz

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Server is a manager.Runnable: Start blocks serving /healthz until ctx
// is canceled, then shuts down gracefully.
type Server struct {
	addr string
}

// New constructs a Server bound to addr (e.g. ":8080").
func New(addr string) *Server {
	return &Server{addr: addr}
}

// Start implements manager.Runnable.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: s.addr, Handler: mux}
	logger := log.FromContext(ctx).WithName("healthz")

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving liveness endpoint", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// NeedLeaderElection reports that liveness must be served by every
// replica, not just the elected leader.
func (s *Server) NeedLeaderElection() bool { return false }
