package activities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func clientKey(namespace, name string) client.ObjectKey {
	return client.ObjectKey{Namespace: namespace, Name: name}
}

func newFakeScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	return scheme
}

func TestK8sDeployCreatesStatefulSetServiceAndPVC(t *testing.T) {
	fakeClient := fake.NewClientBuilder().WithScheme(newFakeScheme(t)).Build()
	deploy := K8sDeploy(fakeClient)

	out, err := deploy(context.Background(), DeployPostgresInput{
		Namespace:       "default",
		InstanceName:    "mydb",
		Password:        "secret",
		PostgresVersion: "16",
		StorageSizeGB:   10,
	})
	require.NoError(t, err)
	assert.True(t, out.Created)

	var sts appsv1.StatefulSet
	require.NoError(t, fakeClient.Get(context.Background(), clientKey("default", "mydb"), &sts))

	var svc corev1.Service
	require.NoError(t, fakeClient.Get(context.Background(), clientKey("default", "mydb-svc"), &svc))

	var pvc corev1.PersistentVolumeClaim
	require.NoError(t, fakeClient.Get(context.Background(), clientKey("default", "mydb-data"), &pvc))
}

func TestK8sDeployAppliesResourceOverrides(t *testing.T) {
	fakeClient := fake.NewClientBuilder().WithScheme(newFakeScheme(t)).Build()
	deploy := K8sDeploy(fakeClient)

	_, err := deploy(context.Background(), DeployPostgresInput{
		Namespace:       "default",
		InstanceName:    "mydb",
		Password:        "secret",
		PostgresVersion: "16",
		StorageSizeGB:   10,
		CPURequest:      "250m",
		MemoryRequest:   "256Mi",
		CPULimit:        "1",
		MemoryLimit:     "1Gi",
	})
	require.NoError(t, err)

	var sts appsv1.StatefulSet
	require.NoError(t, fakeClient.Get(context.Background(), clientKey("default", "mydb"), &sts))

	res := sts.Spec.Template.Spec.Containers[0].Resources
	assert.Equal(t, "250m", res.Requests.Cpu().String())
	assert.Equal(t, "256Mi", res.Requests.Memory().String())
	assert.Equal(t, "1", res.Limits.Cpu().String())
	assert.Equal(t, "1Gi", res.Limits.Memory().String())
}

func TestK8sDeployOmitsResourcesWhenUnset(t *testing.T) {
	fakeClient := fake.NewClientBuilder().WithScheme(newFakeScheme(t)).Build()
	deploy := K8sDeploy(fakeClient)

	_, err := deploy(context.Background(), DeployPostgresInput{Namespace: "default", InstanceName: "mydb"})
	require.NoError(t, err)

	var sts appsv1.StatefulSet
	require.NoError(t, fakeClient.Get(context.Background(), clientKey("default", "mydb"), &sts))

	res := sts.Spec.Template.Spec.Containers[0].Resources
	assert.Nil(t, res.Requests)
	assert.Nil(t, res.Limits)
}

func TestK8sDeployIsIdempotentWhenStatefulSetExists(t *testing.T) {
	existing := &appsv1.StatefulSet{ObjectMeta: metav1.ObjectMeta{Name: "mydb", Namespace: "default"}}
	fakeClient := fake.NewClientBuilder().WithScheme(newFakeScheme(t)).WithObjects(existing).Build()
	deploy := K8sDeploy(fakeClient)

	out, err := deploy(context.Background(), DeployPostgresInput{Namespace: "default", InstanceName: "mydb"})
	require.NoError(t, err)
	assert.False(t, out.Created)
}

func TestK8sDeleteReportsFalseWhenNothingExisted(t *testing.T) {
	fakeClient := fake.NewClientBuilder().WithScheme(newFakeScheme(t)).Build()
	del := K8sDelete(fakeClient)

	out, err := del(context.Background(), DeletePostgresInput{Namespace: "default", InstanceName: "mydb"})
	require.NoError(t, err)
	assert.False(t, out.Deleted)
}

func TestK8sDeleteReportsTrueWhenServiceExisted(t *testing.T) {
	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "mydb-svc", Namespace: "default"}}
	fakeClient := fake.NewClientBuilder().WithScheme(newFakeScheme(t)).WithObjects(svc).Build()
	del := K8sDelete(fakeClient)

	out, err := del(context.Background(), DeletePostgresInput{Namespace: "default", InstanceName: "mydb"})
	require.NoError(t, err)
	assert.True(t, out.Deleted)
}

func TestK8sWaitForReadyReportsPendingWithNoPods(t *testing.T) {
	fakeClient := fake.NewClientBuilder().WithScheme(newFakeScheme(t)).Build()
	probe := K8sWaitForReady(fakeClient)

	out, err := probe(context.Background(), WaitForReadyInput{Namespace: "default", InstanceName: "mydb"})
	require.NoError(t, err)
	assert.False(t, out.IsReady)
}

func TestK8sWaitForReadyReportsReadyPod(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: "mydb-0", Namespace: "default",
			Labels: map[string]string{instanceLabel: "mydb"},
		},
		Status: corev1.PodStatus{
			Phase:      corev1.PodRunning,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
		},
	}
	fakeClient := fake.NewClientBuilder().WithScheme(newFakeScheme(t)).WithObjects(pod).Build()
	probe := K8sWaitForReady(fakeClient)

	out, err := probe(context.Background(), WaitForReadyInput{Namespace: "default", InstanceName: "mydb"})
	require.NoError(t, err)
	assert.True(t, out.IsReady)
	assert.Equal(t, string(corev1.PodRunning), out.PodPhase)
}
