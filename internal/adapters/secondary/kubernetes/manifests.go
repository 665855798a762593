package kubernetes

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"

	"fraud-classifier-service/internal/core/domain"
	ports "fraud-classifier-service/internal/core/ports/output"
)

const (
	containerName = "inference"
	portName      = "http"
	managedBy     = "fraudctl"
)

func objectLabels(d *domain.DeploymentDescriptor) map[string]string {
	labels := map[string]string{"app.kubernetes.io/managed-by": managedBy}
	for k, v := range d.Labels {
		labels[k] = v
	}
	for k, v := range d.Selector() {
		labels[k] = v
	}
	return labels
}

func resourceList(l domain.ResourceList) corev1.ResourceList {
	out := corev1.ResourceList{}
	if l.Memory != "" {
		out[corev1.ResourceMemory] = resource.MustParse(l.Memory)
	}
	if l.CPU != "" {
		out[corev1.ResourceCPU] = resource.MustParse(l.CPU)
	}
	return out
}

func envVars(d *domain.DeploymentDescriptor) []corev1.EnvVar {
	env := []corev1.EnvVar{{Name: "SERVER_PORT", Value: strconv.Itoa(int(d.ContainerPort))}}
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		if k != "SERVER_PORT" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, corev1.EnvVar{Name: k, Value: d.Env[k]})
	}
	return env
}

func httpProbe(path string, delay int32) *corev1.Probe {
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{Path: path, Port: intstr.FromString(portName)},
		},
		InitialDelaySeconds: delay,
		PeriodSeconds:       10,
	}
}

// BuildDeployment maps a validated descriptor onto an apps/v1 Deployment.
// Rolling replacement on change is left to the Deployment controller.
func BuildDeployment(d *domain.DeploymentDescriptor) *appsv1.Deployment {
	labels := objectLabels(d)
	replicas := *d.Replicas

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      d.Name,
			Namespace: d.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: d.Selector()},
			Strategy: appsv1.DeploymentStrategy{Type: appsv1.RollingUpdateDeploymentStrategyType},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyAlways,
					Containers: []corev1.Container{{
						Name:            containerName,
						Image:           d.Image,
						ImagePullPolicy: corev1.PullPolicy(d.ImagePullPolicy),
						Ports: []corev1.ContainerPort{{
							Name:          portName,
							ContainerPort: d.ContainerPort,
							Protocol:      corev1.ProtocolTCP,
						}},
						Env: envVars(d),
						Resources: corev1.ResourceRequirements{
							Limits:   resourceList(d.Resources.Limits),
							Requests: resourceList(d.Resources.Requests),
						},
						ReadinessProbe: httpProbe("/readyz", 2),
						LivenessProbe:  httpProbe("/healthz", 10),
					}},
				},
			},
		},
	}
}

func BuildService(d *domain.DeploymentDescriptor) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      d.Name,
			Namespace: d.Namespace,
			Labels:    objectLabels(d),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceType(d.Expose),
			Selector: d.Selector(),
			Ports: []corev1.ServicePort{{
				Name:       portName,
				Port:       d.ServicePort,
				TargetPort: intstr.FromString(portName),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
}

// Renderer emits the Deployment and Service as a multi-document YAML stream.
type Renderer struct{}

var _ ports.ManifestRenderer = Renderer{}

func (Renderer) Render(d *domain.DeploymentDescriptor) ([]byte, error) {
	var buf bytes.Buffer
	for i, obj := range []any{BuildDeployment(d), BuildService(d)} {
		out, err := yaml.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("render manifest: %w", err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(out)
	}
	return buf.Bytes(), nil
}
