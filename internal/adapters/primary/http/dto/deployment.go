package dto

import (
	"fraud-classifier-service/internal/core/domain"
	ports "fraud-classifier-service/internal/core/ports/output"
)

type ApplyDeploymentResponse struct {
	Name              string `json:"name"`
	Namespace         string `json:"namespace"`
	Image             string `json:"image"`
	Replicas          int32  `json:"replicas"`
	DeploymentCreated bool   `json:"deployment_created"`
	ServiceCreated    bool   `json:"service_created"`
}

type DeploymentStatusResponse struct {
	Name              string `json:"name"`
	Namespace         string `json:"namespace"`
	Ready             bool   `json:"ready"`
	DesiredReplicas   int32  `json:"desired_replicas"`
	ReadyReplicas     int32  `json:"ready_replicas"`
	UpdatedReplicas   int32  `json:"updated_replicas"`
	AvailableReplicas int32  `json:"available_replicas"`
	ExternalEndpoint  string `json:"external_endpoint,omitempty"`
}

func ToApplyDeploymentResponse(d *domain.DeploymentDescriptor, r *ports.ApplyResult) ApplyDeploymentResponse {
	resp := ApplyDeploymentResponse{
		Name:              d.Name,
		Namespace:         d.Namespace,
		Image:             d.Image,
		DeploymentCreated: r.DeploymentCreated,
		ServiceCreated:    r.ServiceCreated,
	}
	if d.Replicas != nil {
		resp.Replicas = *d.Replicas
	}
	return resp
}

func ToDeploymentStatusResponse(s *ports.DeploymentStatus) DeploymentStatusResponse {
	return DeploymentStatusResponse{
		Name:              s.Name,
		Namespace:         s.Namespace,
		Ready:             s.Ready(),
		DesiredReplicas:   s.DesiredReplicas,
		ReadyReplicas:     s.ReadyReplicas,
		UpdatedReplicas:   s.UpdatedReplicas,
		AvailableReplicas: s.AvailableReplicas,
		ExternalEndpoint:  s.ExternalEndpoint,
	}
}
