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

package bootstrap

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"gopkg.in/yaml.v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	clusterInfoNamespace = "kube-public"
	clusterInfoName      = "cluster-info"
	clusterInfoKey       = "kubeconfig"
)

// kubeconfigClusters is the minimal shape needed to pull
// certificate-authority-data out of the cluster-info ConfigMap's embedded
// kubeconfig document.
type kubeconfigClusters struct {
	Clusters []struct {
		Cluster struct {
			CertificateAuthorityData string `yaml:"certificate-authority-data"`
		} `yaml:"cluster"`
	} `yaml:"clusters"`
}

// CACertHash reads the kube-public/cluster-info ConfigMap and returns the
// SHA-256 hex digest of the DER-encoded SubjectPublicKeyInfo of the
// embedded CA certificate, the exact derivation kubeadm's
// --discovery-token-ca-cert-hash flag requires.
func CACertHash(ctx context.Context, c client.Client) (string, error) {
	cm := &corev1.ConfigMap{}
	if err := c.Get(ctx, client.ObjectKey{Namespace: clusterInfoNamespace, Name: clusterInfoName}, cm); err != nil {
		return "", fmt.Errorf("bootstrap: reading cluster-info configmap: %w", err)
	}
	raw, ok := cm.Data[clusterInfoKey]
	if !ok {
		return "", fmt.Errorf("bootstrap: cluster-info configmap missing %q key", clusterInfoKey)
	}

	var parsed kubeconfigClusters
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("bootstrap: parsing embedded kubeconfig: %w", err)
	}
	if len(parsed.Clusters) == 0 {
		return "", fmt.Errorf("bootstrap: embedded kubeconfig has no clusters")
	}

	caData := parsed.Clusters[0].Cluster.CertificateAuthorityData
	der, err := base64.StdEncoding.DecodeString(caData)
	if err != nil {
		return "", fmt.Errorf("bootstrap: decoding certificate-authority-data: %w", err)
	}

	block, _ := pem.Decode(der)
	if block != nil {
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return "", fmt.Errorf("bootstrap: parsing CA certificate: %w", err)
	}

	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(sum[:]), nil
}
