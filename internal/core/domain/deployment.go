package domain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	DefaultContainerPort int32 = 3000
	DefaultServicePort   int32 = 80
	DefaultNamespace           = "default"

	ExposeLoadBalancer = "LoadBalancer"
	ExposeNodePort     = "NodePort"
	ExposeClusterIP    = "ClusterIP"

	PullAlways       = "Always"
	PullIfNotPresent = "IfNotPresent"
	PullNever        = "Never"
)

// ============================================================================
// Deployment Descriptor
// ============================================================================

// ResourceList holds Kubernetes quantity strings, e.g. "500Mi" and "1".
type ResourceList struct {
	Memory string `yaml:"memory,omitempty" json:"memory,omitempty"`
	CPU    string `yaml:"cpu,omitempty" json:"cpu,omitempty"`
}

type Resources struct {
	Limits   ResourceList `yaml:"limits" json:"limits"`
	Requests ResourceList `yaml:"requests,omitempty" json:"requests,omitempty"`
}

// DeploymentDescriptor declares how the inference service runs on a cluster.
// It carries no behavior; an orchestrator converges the cluster onto it.
type DeploymentDescriptor struct {
	Name            string            `yaml:"name" json:"name"`
	Namespace       string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Image           string            `yaml:"image" json:"image"`
	Replicas        *int32            `yaml:"replicas,omitempty" json:"replicas,omitempty"`
	ContainerPort   int32             `yaml:"containerPort,omitempty" json:"containerPort,omitempty"`
	ServicePort     int32             `yaml:"servicePort,omitempty" json:"servicePort,omitempty"`
	Expose          string            `yaml:"expose,omitempty" json:"expose,omitempty"`
	ImagePullPolicy string            `yaml:"imagePullPolicy,omitempty" json:"imagePullPolicy,omitempty"`
	Resources       Resources         `yaml:"resources" json:"resources"`
	Env             map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Labels          map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// ParseDeploymentDescriptor decodes YAML, rejecting unknown keys, then fills
// defaults and validates. An absent namespace stays empty so the deployer can
// fill in its configured one.
func ParseDeploymentDescriptor(data []byte) (*DeploymentDescriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d DeploymentDescriptor
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	d.ApplyDefaults("")
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ApplyDefaults fills unset fields. An empty namespace is replaced by
// namespace; pass "" to leave it unset.
func (d *DeploymentDescriptor) ApplyDefaults(namespace string) {
	if d.Namespace == "" {
		d.Namespace = namespace
	}
	if d.Replicas == nil {
		one := int32(1)
		d.Replicas = &one
	}
	if d.ContainerPort == 0 {
		d.ContainerPort = DefaultContainerPort
	}
	if d.ServicePort == 0 {
		d.ServicePort = DefaultServicePort
	}
	if d.Expose == "" {
		d.Expose = ExposeLoadBalancer
	}
	if d.ImagePullPolicy == "" {
		d.ImagePullPolicy = PullIfNotPresent
	}
}

// Validate checks d as the API server would. An empty namespace is accepted.
func (d *DeploymentDescriptor) Validate() error {
	if errs := validation.IsDNS1123Label(d.Name); len(errs) > 0 {
		return fmt.Errorf("%w: name %q: %s", ErrInvalidDescriptor, d.Name, strings.Join(errs, "; "))
	}
	if d.Namespace != "" {
		if errs := validation.IsDNS1123Label(d.Namespace); len(errs) > 0 {
			return fmt.Errorf("%w: namespace %q: %s", ErrInvalidDescriptor, d.Namespace, strings.Join(errs, "; "))
		}
	}
	if _, err := name.ParseReference(d.Image); err != nil {
		return fmt.Errorf("%w: image: %v", ErrInvalidDescriptor, err)
	}
	if d.Replicas != nil && *d.Replicas < 0 {
		return fmt.Errorf("%w: replicas must not be negative", ErrInvalidDescriptor)
	}
	for _, p := range []int32{d.ContainerPort, d.ServicePort} {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidDescriptor, p)
		}
	}
	switch d.Expose {
	case ExposeLoadBalancer, ExposeNodePort, ExposeClusterIP:
	default:
		return fmt.Errorf("%w: expose %q", ErrInvalidDescriptor, d.Expose)
	}
	switch d.ImagePullPolicy {
	case PullAlways, PullIfNotPresent, PullNever:
	default:
		return fmt.Errorf("%w: imagePullPolicy %q", ErrInvalidDescriptor, d.ImagePullPolicy)
	}
	if d.Resources.Limits.Memory == "" || d.Resources.Limits.CPU == "" {
		return fmt.Errorf("%w: resources.limits needs memory and cpu", ErrInvalidDescriptor)
	}
	for field, q := range map[string]string{
		"limits.memory":   d.Resources.Limits.Memory,
		"limits.cpu":      d.Resources.Limits.CPU,
		"requests.memory": d.Resources.Requests.Memory,
		"requests.cpu":    d.Resources.Requests.CPU,
	} {
		if q == "" {
			continue
		}
		if _, err := resource.ParseQuantity(q); err != nil {
			return fmt.Errorf("%w: resources.%s: %v", ErrInvalidDescriptor, field, err)
		}
	}
	return nil
}

// Selector is the label set binding the Service to the Deployment's pods.
func (d *DeploymentDescriptor) Selector() map[string]string {
	return map[string]string{"app.kubernetes.io/name": d.Name}
}
