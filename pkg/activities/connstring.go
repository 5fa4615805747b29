package activities

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	dbUsername            = "postgres"
	dbName                = "postgres"
	dbPort                = 5432
	loadBalancerIPAttempts = 10
	loadBalancerIPPoll     = 5 * time.Second

	regionLabelTopology = "topology.kubernetes.io/region"
	regionLabelLegacy   = "failure-domain.beta.kubernetes.io/region"
)

// K8sGetConnectionStrings resolves the Service address for an instance and
// builds every connection-string form applicable to it: a ClusterIP form
// always, or — when UseLoadBalancer is set — an external-IP form and,
// with a DNS label, an Azure-style public DNS form.
func K8sGetConnectionStrings(k8sClient client.Client) func(context.Context, GetConnectionStringsInput) (GetConnectionStringsOutput, error) {
	return func(ctx context.Context, input GetConnectionStringsInput) (GetConnectionStringsOutput, error) {
		if !input.UseLoadBalancer {
			host := fmt.Sprintf("%s.%s.svc.cluster.local", serviceName(input.InstanceName), input.Namespace)
			return GetConnectionStringsOutput{
				IPConnectionString: connString(host, input.Password),
			}, nil
		}

		externalIP, err := waitForLoadBalancerIP(ctx, k8sClient, input.Namespace, serviceName(input.InstanceName))
		if err != nil {
			return GetConnectionStringsOutput{}, err
		}

		out := GetConnectionStringsOutput{
			IPConnectionString: connString(externalIP, input.Password),
			ExternalIP:         externalIP,
		}

		if input.DNSLabel != "" {
			region, err := azureRegion(ctx, k8sClient)
			if err != nil {
				// Best effort: DNS form is optional, not fatal to the activity.
				return out, nil
			}
			dnsName := fmt.Sprintf("%s.%s.cloudapp.azure.com", input.DNSLabel, region)
			out.DNSName = dnsName
			out.DNSConnectionString = connString(dnsName, input.Password)
		}

		return out, nil
	}
}

func connString(host, password string) string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s", dbUsername, password, host, dbPort, dbName)
}

func waitForLoadBalancerIP(ctx context.Context, k8sClient client.Client, namespace, name string) (string, error) {
	for attempt := 1; attempt <= loadBalancerIPAttempts; attempt++ {
		var svc corev1.Service
		if err := k8sClient.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, &svc); err != nil {
			return "", fmt.Errorf("get service: %w", err)
		}
		for _, ingress := range svc.Status.LoadBalancer.Ingress {
			if ingress.IP != "" {
				return ingress.IP, nil
			}
		}
		if attempt < loadBalancerIPAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(loadBalancerIPPoll):
			}
		}
	}
	return "", fmt.Errorf("timed out waiting for load balancer external ip")
}

func azureRegion(ctx context.Context, k8sClient client.Client) (string, error) {
	var nodes corev1.NodeList
	if err := k8sClient.List(ctx, &nodes, client.Limit(1)); err != nil {
		return "", fmt.Errorf("list nodes: %w", err)
	}
	if len(nodes.Items) == 0 {
		return "", fmt.Errorf("no nodes found")
	}
	labels := nodes.Items[0].Labels
	if region, ok := labels[regionLabelTopology]; ok {
		return region, nil
	}
	if region, ok := labels[regionLabelLegacy]; ok {
		return region, nil
	}
	return "", fmt.Errorf("region label not found on node")
}
