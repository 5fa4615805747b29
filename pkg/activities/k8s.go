package activities

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// instanceLabel is the label Deploy stamps on every resource it creates,
// and the one Pod-Readiness Probe selects pods by.
const instanceLabel = "instance"

// serviceName is the Kubernetes Service name Deploy creates and
// GetConnectionStrings resolves back to an address.
func serviceName(instanceName string) string {
	return instanceName + "-svc"
}

// containerResources builds the postgres container's ResourceRequirements
// from whichever of CPURequest/MemoryRequest/CPULimit/MemoryLimit the
// caller set. A quantity left blank is omitted rather than defaulted, so
// a namespace's LimitRange still applies to it.
func containerResources(input DeployPostgresInput) corev1.ResourceRequirements {
	requests := corev1.ResourceList{}
	limits := corev1.ResourceList{}

	if input.CPURequest != "" {
		requests[corev1.ResourceCPU] = resource.MustParse(input.CPURequest)
	}
	if input.MemoryRequest != "" {
		requests[corev1.ResourceMemory] = resource.MustParse(input.MemoryRequest)
	}
	if input.CPULimit != "" {
		limits[corev1.ResourceCPU] = resource.MustParse(input.CPULimit)
	}
	if input.MemoryLimit != "" {
		limits[corev1.ResourceMemory] = resource.MustParse(input.MemoryLimit)
	}

	res := corev1.ResourceRequirements{}
	if len(requests) > 0 {
		res.Requests = requests
	}
	if len(limits) > 0 {
		res.Limits = limits
	}
	return res
}

// K8sDeploy renders and applies the StatefulSet, Service, and PVC for one
// PostgreSQL instance. Idempotent: if a StatefulSet of the same name
// already exists, it reports created=false and touches nothing else,
// matching a replayed Deploy activity invocation.
func K8sDeploy(k8sClient client.Client) func(context.Context, DeployPostgresInput) (DeployPostgresOutput, error) {
	return func(ctx context.Context, input DeployPostgresInput) (DeployPostgresOutput, error) {
		existing := &appsv1.StatefulSet{}
		err := k8sClient.Get(ctx, client.ObjectKey{Namespace: input.Namespace, Name: input.InstanceName}, existing)
		if err == nil {
			return DeployPostgresOutput{InstanceName: input.InstanceName, Namespace: input.Namespace, Created: false}, nil
		}
		if !apierrors.IsNotFound(err) {
			return DeployPostgresOutput{}, fmt.Errorf("probe existing statefulset: %w", err)
		}

		labels := map[string]string{instanceLabel: input.InstanceName}

		pvc := &corev1.PersistentVolumeClaim{
			ObjectMeta: metav1.ObjectMeta{Name: input.InstanceName + "-data", Namespace: input.Namespace, Labels: labels},
			Spec: corev1.PersistentVolumeClaimSpec{
				AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
				Resources: corev1.VolumeResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceStorage: resource.MustParse(fmt.Sprintf("%dGi", input.StorageSizeGB)),
					},
				},
			},
		}
		if err := k8sClient.Create(ctx, pvc); err != nil && !apierrors.IsAlreadyExists(err) {
			return DeployPostgresOutput{}, fmt.Errorf("create pvc: %w", err)
		}

		serviceType := corev1.ServiceTypeClusterIP
		if input.UseLoadBalancer {
			serviceType = corev1.ServiceTypeLoadBalancer
		}
		svc := &corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: serviceName(input.InstanceName), Namespace: input.Namespace, Labels: labels},
			Spec: corev1.ServiceSpec{
				Type:     serviceType,
				Selector: labels,
				Ports:    []corev1.ServicePort{{Name: "postgres", Port: 5432, TargetPort: intstr.FromInt32(5432)}},
			},
		}
		if err := k8sClient.Create(ctx, svc); err != nil && !apierrors.IsAlreadyExists(err) {
			return DeployPostgresOutput{}, fmt.Errorf("create service: %w", err)
		}

		replicas := int32(1)
		statefulSet := &appsv1.StatefulSet{
			ObjectMeta: metav1.ObjectMeta{Name: input.InstanceName, Namespace: input.Namespace, Labels: labels},
			Spec: appsv1.StatefulSetSpec{
				Replicas:    &replicas,
				ServiceName: input.InstanceName,
				Selector:    &metav1.LabelSelector{MatchLabels: labels},
				Template: corev1.PodTemplateSpec{
					ObjectMeta: metav1.ObjectMeta{Labels: labels},
					Spec: corev1.PodSpec{
						Containers: []corev1.Container{{
							Name:  "postgres",
							Image: "postgres:" + input.PostgresVersion,
							Ports: []corev1.ContainerPort{{ContainerPort: 5432}},
							Env: []corev1.EnvVar{
								{Name: "POSTGRES_PASSWORD", Value: input.Password},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "data", MountPath: "/var/lib/postgresql/data"},
							},
							Resources: containerResources(input),
						}},
						Volumes: []corev1.Volume{{
							Name: "data",
							VolumeSource: corev1.VolumeSource{
								PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: pvc.Name},
							},
						}},
					},
				},
			},
		}
		if err := k8sClient.Create(ctx, statefulSet); err != nil {
			return DeployPostgresOutput{}, fmt.Errorf("create statefulset: %w", err)
		}

		return DeployPostgresOutput{InstanceName: input.InstanceName, Namespace: input.Namespace, Created: true}, nil
	}
}

// K8sDelete removes the Service, StatefulSet, and (after a short pause to
// let pods terminate) the PVC, each tolerating 404. Reports deleted=true
// iff at least one of the three resources existed.
func K8sDelete(k8sClient client.Client) func(context.Context, DeletePostgresInput) (DeletePostgresOutput, error) {
	return func(ctx context.Context, input DeletePostgresInput) (DeletePostgresOutput, error) {
		anyExisted := false

		svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: serviceName(input.InstanceName), Namespace: input.Namespace}}
		if err := k8sClient.Delete(ctx, svc); err != nil {
			if !apierrors.IsNotFound(err) {
				return DeletePostgresOutput{}, fmt.Errorf("delete service: %w", err)
			}
		} else {
			anyExisted = true
		}

		sts := &appsv1.StatefulSet{ObjectMeta: metav1.ObjectMeta{Name: input.InstanceName, Namespace: input.Namespace}}
		if err := k8sClient.Delete(ctx, sts); err != nil {
			if !apierrors.IsNotFound(err) {
				return DeletePostgresOutput{}, fmt.Errorf("delete statefulset: %w", err)
			}
		} else {
			anyExisted = true
		}

		time.Sleep(2 * time.Second)

		pvc := &corev1.PersistentVolumeClaim{ObjectMeta: metav1.ObjectMeta{Name: input.InstanceName + "-data", Namespace: input.Namespace}}
		if err := k8sClient.Delete(ctx, pvc); err != nil {
			if !apierrors.IsNotFound(err) {
				return DeletePostgresOutput{}, fmt.Errorf("delete pvc: %w", err)
			}
		} else {
			anyExisted = true
		}

		return DeletePostgresOutput{Deleted: anyExisted}, nil
	}
}

// K8sWaitForReady takes a single, non-polling snapshot of pod readiness
// for the instance's pods. The calling workflow polls by scheduling this
// activity again after a durable timer, not by looping in here.
func K8sWaitForReady(k8sClient client.Client) func(context.Context, WaitForReadyInput) (WaitForReadyOutput, error) {
	return func(ctx context.Context, input WaitForReadyInput) (WaitForReadyOutput, error) {
		var pods corev1.PodList
		if err := k8sClient.List(ctx, &pods,
			client.InNamespace(input.Namespace),
			client.MatchingLabels{instanceLabel: input.InstanceName},
		); err != nil {
			return WaitForReadyOutput{}, fmt.Errorf("list pods: %w", err)
		}

		if len(pods.Items) == 0 {
			return WaitForReadyOutput{PodPhase: string(corev1.PodPending), IsReady: false}, nil
		}

		pod := pods.Items[0]
		ready := false
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
				ready = true
			}
		}
		return WaitForReadyOutput{PodPhase: string(pod.Status.Phase), IsReady: ready}, nil
	}
}
