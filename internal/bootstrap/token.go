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

// Package bootstrap mints join credentials and renders the startup script
// a provisioned cloud substitute runs to become a cluster node. It is kept
// independent of internal/cluster because it touches three unrelated
// concerns: Secret creation, ConfigMap/x509 parsing, and shell templating.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	bootstrapTokenSecretNamespace = "kube-system"
	bootstrapTokenUsageAuth       = "true"
	bootstrapTokenUsageSigning    = "true"
	bootstrapTokenExtraGroups     = "system:bootstrappers:kubeadm:default-node-token"
)

// Token is a minted bootstrap credential, ready to be embedded in a join
// command as "<ID>.<Secret>".
type Token struct {
	ID     string
	Secret string
}

// String renders the token in the kubeadm "<id>.<secret>" form.
func (t Token) String() string {
	return fmt.Sprintf("%s.%s", t.ID, t.Secret)
}

// MintToken creates a bootstrap token Secret in kube-system with the given
// TTL and returns the minted Token. The token ID is 3 random bytes and the
// token secret 8 random bytes, hex-encoded, matching the sizes kubeadm's
// join protocol expects.
func MintToken(ctx context.Context, c client.Client, ttl time.Duration) (Token, error) {
	id, err := randomHex(3)
	if err != nil {
		return Token{}, fmt.Errorf("bootstrap: generating token id: %w", err)
	}
	secret, err := randomHex(8)
	if err != nil {
		return Token{}, fmt.Errorf("bootstrap: generating token secret: %w", err)
	}

	expiration := time.Now().Add(ttl).UTC().Format(time.RFC3339)
	obj := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "bootstrap-token-" + id,
			Namespace: bootstrapTokenSecretNamespace,
		},
		Type: "bootstrap.kubernetes.io/token",
		StringData: map[string]string{
			"token-id":                       id,
			"token-secret":                   secret,
			"usage-bootstrap-authentication":  bootstrapTokenUsageAuth,
			"usage-bootstrap-signing":         bootstrapTokenUsageSigning,
			"auth-extra-groups":               bootstrapTokenExtraGroups,
			"expiration":                      expiration,
		},
	}
	if err := c.Create(ctx, obj); err != nil {
		return Token{}, fmt.Errorf("bootstrap: creating token secret: %w", err)
	}
	return Token{ID: id, Secret: secret}, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
