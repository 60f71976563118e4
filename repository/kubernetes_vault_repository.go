// ABOUTME: Kubernetes Secret-based TokenVaultRepository implementation
// ABOUTME: Persists token bundles per session key for post-restart reconstruction

package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"federation-hub/models"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// KubernetesVaultRepository implements TokenVaultRepository using a single
// Kubernetes Secret. Each session key owns one data entry inside the Secret,
// so bundles survive process restarts without touching the user directory.
type KubernetesVaultRepository struct {
	clientset  kubernetes.Interface
	namespace  string
	secretName string
	logger     *slog.Logger
}

// NewKubernetesVaultRepository creates a vault backed by the in-cluster config.
func NewKubernetesVaultRepository(namespace, secretName string, logger *slog.Logger) (*KubernetesVaultRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := rest.InClusterConfig()
	if err != nil {
		logger.Error("Failed to create in-cluster config", "error", err)
		return nil, fmt.Errorf("failed to create Kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		logger.Error("Failed to create Kubernetes clientset", "error", err)
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	return &KubernetesVaultRepository{
		clientset:  clientset,
		namespace:  namespace,
		secretName: secretName,
		logger:     logger,
	}, nil
}

// NewKubernetesVaultRepositoryWithClientset creates a vault with a custom clientset (for testing)
func NewKubernetesVaultRepositoryWithClientset(clientset kubernetes.Interface, namespace, secretName string, logger *slog.Logger) *KubernetesVaultRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &KubernetesVaultRepository{
		clientset:  clientset,
		namespace:  namespace,
		secretName: secretName,
		logger:     logger,
	}
}

// dataKey maps a session key onto a Secret data key. Session keys may carry
// characters Secret keys forbid, so the key is hashed.
func dataKey(key models.SessionKey) string {
	sum := sha256.Sum256([]byte(key.String()))
	return "bundle." + hex.EncodeToString(sum[:16])
}

// GetBundle retrieves the stored bundle for a session key.
func (r *KubernetesVaultRepository) GetBundle(ctx context.Context, key models.SessionKey) (*models.TokenBundle, error) {
	secret, err := r.clientset.CoreV1().Secrets(r.namespace).Get(
		ctx, r.secretName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrBundleNotFound
		}
		return nil, fmt.Errorf("failed to retrieve vault secret: %w", err)
	}

	bundleBytes, exists := secret.Data[dataKey(key)]
	if !exists {
		return nil, ErrBundleNotFound
	}

	var bundle models.TokenBundle
	if err := json.Unmarshal(bundleBytes, &bundle); err != nil {
		r.logger.Error("Failed to parse bundle data from secret",
			"secret_name", r.secretName,
			"error", err)
		return nil, fmt.Errorf("invalid bundle data in secret: %w", err)
	}

	r.logger.Debug("Retrieved token bundle from vault",
		"principal_id", key.PrincipalID,
		"provider", key.Provider,
		"expires_at", bundle.ExpiresAt)

	return &bundle, nil
}

// SaveBundle upserts the bundle entry for a session key.
func (r *KubernetesVaultRepository) SaveBundle(ctx context.Context, key models.SessionKey, bundle models.TokenBundle) error {
	if bundle.AccessToken == "" {
		return fmt.Errorf("refusing to store bundle without access token")
	}

	bundleBytes, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to serialize bundle: %w", err)
	}

	secret, err := r.clientset.CoreV1().Secrets(r.namespace).Get(
		ctx, r.secretName, metav1.GetOptions{})
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to retrieve vault secret: %w", err)
		}
		return r.createSecret(ctx, map[string][]byte{dataKey(key): bundleBytes})
	}

	if secret.Data == nil {
		secret.Data = make(map[string][]byte)
	}
	secret.Data[dataKey(key)] = bundleBytes
	if secret.Annotations == nil {
		secret.Annotations = make(map[string]string)
	}
	secret.Annotations["federation-hub/last-updated"] = time.Now().Format(time.RFC3339)

	if _, err := r.clientset.CoreV1().Secrets(r.namespace).Update(ctx, secret, metav1.UpdateOptions{}); err != nil {
		r.logger.Error("Failed to update vault secret", "error", err)
		return fmt.Errorf("failed to update vault secret: %w", err)
	}

	r.logger.Debug("Saved token bundle to vault",
		"principal_id", key.PrincipalID,
		"provider", key.Provider,
		"expires_at", bundle.ExpiresAt)

	return nil
}

// DeleteBundle removes the bundle entry for a session key. Idempotent.
func (r *KubernetesVaultRepository) DeleteBundle(ctx context.Context, key models.SessionKey) error {
	secret, err := r.clientset.CoreV1().Secrets(r.namespace).Get(
		ctx, r.secretName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to retrieve vault secret: %w", err)
	}

	if _, exists := secret.Data[dataKey(key)]; !exists {
		return nil
	}

	delete(secret.Data, dataKey(key))
	if _, err := r.clientset.CoreV1().Secrets(r.namespace).Update(ctx, secret, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update vault secret: %w", err)
	}

	r.logger.Debug("Deleted token bundle from vault",
		"principal_id", key.PrincipalID,
		"provider", key.Provider)

	return nil
}

// createSecret creates the vault secret with the given initial data.
func (r *KubernetesVaultRepository) createSecret(ctx context.Context, data map[string][]byte) error {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      r.secretName,
			Namespace: r.namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name":       "federation-hub",
				"app.kubernetes.io/component":  "token-vault",
				"app.kubernetes.io/managed-by": "federation-hub",
			},
			Annotations: map[string]string{
				"federation-hub/last-updated": time.Now().Format(time.RFC3339),
			},
		},
		Type: corev1.SecretTypeOpaque,
		Data: data,
	}

	if _, err := r.clientset.CoreV1().Secrets(r.namespace).Create(ctx, secret, metav1.CreateOptions{}); err != nil {
		r.logger.Error("Failed to create vault secret", "error", err)
		return fmt.Errorf("failed to create vault secret: %w", err)
	}

	r.logger.Info("Created token vault secret", "secret_name", r.secretName)
	return nil
}
