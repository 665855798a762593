package kubernetes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubeclient "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"fraud-classifier-service/internal/config"
	"fraud-classifier-service/internal/core/domain"
	ports "fraud-classifier-service/internal/core/ports/output"
)

type Client struct {
	clientset kubeclient.Interface
}

var _ ports.ClusterClient = (*Client)(nil)

// NewClient builds a typed clientset from in-cluster credentials or a
// kubeconfig file.
func NewClient(cfg *config.KubernetesConfig) (*Client, error) {
	var restCfg *rest.Config
	var err error

	if cfg.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else if cfg.KubeConfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
	} else {
		// Try default kubeconfig location
		home, _ := os.UserHomeDir()
		kubeconfig := filepath.Join(home, ".kube", "config")
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	clientset, err := kubeclient.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create k8s clientset: %w", err)
	}
	return NewClientWithClientset(clientset), nil
}

func NewClientWithClientset(clientset kubeclient.Interface) *Client {
	return &Client{clientset: clientset}
}

// Apply creates the Deployment and Service when missing and updates them in
// place otherwise. Re-applying an unchanged descriptor writes the same spec.
func (c *Client) Apply(ctx context.Context, d *domain.DeploymentDescriptor) (*ports.ApplyResult, error) {
	result := &ports.ApplyResult{}

	deployments := c.clientset.AppsV1().Deployments(d.Namespace)
	desired := BuildDeployment(d)
	existing, err := deployments.Get(ctx, d.Name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		created, err := deployments.Create(ctx, desired, metav1.CreateOptions{})
		if err != nil {
			return nil, fmt.Errorf("%w: create deployment: %v", domain.ErrClusterFailure, err)
		}
		result.DeploymentCreated = true
		result.Generation = created.Generation
	case err != nil:
		return nil, fmt.Errorf("%w: get deployment: %v", domain.ErrClusterFailure, err)
	default:
		existing.Labels = desired.Labels
		existing.Spec = desired.Spec
		updated, err := deployments.Update(ctx, existing, metav1.UpdateOptions{})
		if err != nil {
			return nil, fmt.Errorf("%w: update deployment: %v", domain.ErrClusterFailure, err)
		}
		result.Generation = updated.Generation
	}

	services := c.clientset.CoreV1().Services(d.Namespace)
	desiredSvc := BuildService(d)
	existingSvc, err := services.Get(ctx, d.Name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		if _, err := services.Create(ctx, desiredSvc, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("%w: create service: %v", domain.ErrClusterFailure, err)
		}
		result.ServiceCreated = true
	case err != nil:
		return nil, fmt.Errorf("%w: get service: %v", domain.ErrClusterFailure, err)
	default:
		preserveAllocated(&desiredSvc.Spec, &existingSvc.Spec)
		existingSvc.Labels = desiredSvc.Labels
		existingSvc.Spec = desiredSvc.Spec
		if _, err := services.Update(ctx, existingSvc, metav1.UpdateOptions{}); err != nil {
			return nil, fmt.Errorf("%w: update service: %v", domain.ErrClusterFailure, err)
		}
	}

	return result, nil
}

// preserveAllocated copies the fields the API server assigns to a Service so
// an update does not try to change them.
func preserveAllocated(desired, existing *corev1.ServiceSpec) {
	desired.ClusterIP = existing.ClusterIP
	desired.ClusterIPs = existing.ClusterIPs
	if desired.Type == corev1.ServiceTypeClusterIP {
		return
	}
	for i := range desired.Ports {
		for _, p := range existing.Ports {
			if p.Name == desired.Ports[i].Name && p.NodePort != 0 {
				desired.Ports[i].NodePort = p.NodePort
			}
		}
	}
}

// Delete removes the Service and Deployment. Either may already be gone;
// ErrDeploymentMissing is returned only when neither existed.
func (c *Client) Delete(ctx context.Context, namespace, name string) error {
	propagation := metav1.DeletePropagationForeground
	opts := metav1.DeleteOptions{PropagationPolicy: &propagation}

	found := false
	err := c.clientset.CoreV1().Services(namespace).Delete(ctx, name, opts)
	switch {
	case err == nil:
		found = true
	case !apierrors.IsNotFound(err):
		return fmt.Errorf("%w: delete service: %v", domain.ErrClusterFailure, err)
	}

	err = c.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, opts)
	switch {
	case err == nil:
		found = true
	case !apierrors.IsNotFound(err):
		return fmt.Errorf("%w: delete deployment: %v", domain.ErrClusterFailure, err)
	}

	if !found {
		return fmt.Errorf("%w: %s/%s", domain.ErrDeploymentMissing, namespace, name)
	}
	return nil
}

func (c *Client) Status(ctx context.Context, namespace, name string) (*ports.DeploymentStatus, error) {
	dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrDeploymentMissing, namespace, name)
		}
		return nil, fmt.Errorf("%w: get deployment: %v", domain.ErrClusterFailure, err)
	}

	status := &ports.DeploymentStatus{
		Name:              dep.Name,
		Namespace:         dep.Namespace,
		ReadyReplicas:     dep.Status.ReadyReplicas,
		UpdatedReplicas:   dep.Status.UpdatedReplicas,
		AvailableReplicas: dep.Status.AvailableReplicas,
	}
	if dep.Spec.Replicas != nil {
		status.DesiredReplicas = *dep.Spec.Replicas
	}

	svc, err := c.clientset.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	switch {
	case err == nil:
		status.ExternalEndpoint = externalEndpoint(svc)
	case !apierrors.IsNotFound(err):
		return nil, fmt.Errorf("%w: get service: %v", domain.ErrClusterFailure, err)
	}
	return status, nil
}

func externalEndpoint(svc *corev1.Service) string {
	var port int32
	if len(svc.Spec.Ports) > 0 {
		port = svc.Spec.Ports[0].Port
	}
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		host := ing.IP
		if host == "" {
			host = ing.Hostname
		}
		if host != "" {
			return fmt.Sprintf("%s:%d", host, port)
		}
	}
	return ""
}
