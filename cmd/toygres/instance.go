package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage PostgreSQL instances through a running toygres serve's HTTP Client Surface",
}

func apiAddrFlag(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("api-addr")
	return addr
}

// apiRequest issues an HTTP call against a running toygres serve and
// decodes its JSON body into out (nil skips decoding). Mirrors the
// teacher CLI's --manager-address convention, aimed at this repo's HTTP
// Client Surface instead of a gRPC endpoint.
func apiRequest(method, addr, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, addr+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Start a CreateInstance orchestration for a new PostgreSQL instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		userName, _ := cmd.Flags().GetString("user")
		password, _ := cmd.Flags().GetString("password")
		version, _ := cmd.Flags().GetString("postgres-version")
		storageGB, _ := cmd.Flags().GetInt("storage-gb")
		useLB, _ := cmd.Flags().GetBool("load-balancer")
		dnsLabel, _ := cmd.Flags().GetString("dns-label")
		namespace, _ := cmd.Flags().GetString("namespace")
		cpuRequest, _ := cmd.Flags().GetString("cpu-request")
		memRequest, _ := cmd.Flags().GetString("memory-request")
		cpuLimit, _ := cmd.Flags().GetString("cpu-limit")
		memLimit, _ := cmd.Flags().GetString("memory-limit")

		if password == "" {
			return fmt.Errorf("--password is required")
		}

		body := map[string]interface{}{
			"name":              name,
			"user_name":         userName,
			"password":          password,
			"postgres_version":  version,
			"storage_size_gb":   storageGB,
			"use_load_balancer": useLB,
			"dns_label":         dnsLabel,
			"namespace":         namespace,
			"cpu_request":       cpuRequest,
			"memory_request":    memRequest,
			"cpu_limit":         cpuLimit,
			"memory_limit":      memLimit,
		}

		var resp map[string]interface{}
		if err := apiRequest(http.MethodPost, apiAddrFlag(cmd), "/api/v1/instances", body, &resp); err != nil {
			return err
		}
		fmt.Printf("create-instance started: %s\n", resp["instance_id"])
		return nil
	},
}

var instanceGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show a workflow instance's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var info map[string]interface{}
		if err := apiRequest(http.MethodGet, apiAddrFlag(cmd), "/api/v1/instances/"+args[0], nil, &info); err != nil {
			return err
		}
		return printJSON(info)
	},
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every workflow instance id known to the Event-History Store",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]interface{}
		if err := apiRequest(http.MethodGet, apiAddrFlag(cmd), "/api/v1/instances", nil, &resp); err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Start a DeleteInstance orchestration for an existing PostgreSQL instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]interface{}
		if err := apiRequest(http.MethodDelete, apiAddrFlag(cmd), "/api/v1/instances/"+args[0], nil, &resp); err != nil {
			return err
		}
		fmt.Printf("delete-instance started: %s\n", resp["orchestration_id"])
		return nil
	},
}

var instanceEventCmd = &cobra.Command{
	Use:   "raise-event NAME EVENT",
	Short: "Raise an external event against a running orchestration, e.g. InstanceDeleted to stop an InstanceActor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payloadRaw, _ := cmd.Flags().GetString("payload")
		body := map[string]interface{}{"name": args[1]}
		if payloadRaw != "" {
			body["payload"] = json.RawMessage(payloadRaw)
		}
		return apiRequest(http.MethodPost, apiAddrFlag(cmd), "/api/v1/instances/"+args[0]+"/events", body, nil)
	},
}

var instanceHistoryCmd = &cobra.Command{
	Use:   "history NAME EXEC_ID",
	Short: "Dump an execution's event history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]interface{}
		path := fmt.Sprintf("/api/v1/instances/%s/executions/%s/history", args[0], args[1])
		if err := apiRequest(http.MethodGet, apiAddrFlag(cmd), path, nil, &resp); err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var instanceSummaryCmd = &cobra.Command{
	Use:   "cluster-summary",
	Short: "Show instance counts by state, health, and workflow status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]interface{}
		if err := apiRequest(http.MethodGet, apiAddrFlag(cmd), "/api/v1/cluster/summary", nil, &resp); err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	instanceCmd.AddCommand(instanceCreateCmd, instanceGetCmd, instanceListCmd, instanceDeleteCmd,
		instanceEventCmd, instanceHistoryCmd, instanceSummaryCmd)

	all := []*cobra.Command{instanceCreateCmd, instanceGetCmd, instanceListCmd, instanceDeleteCmd,
		instanceEventCmd, instanceHistoryCmd, instanceSummaryCmd}
	for _, c := range all {
		c.Flags().String("api-addr", "http://127.0.0.1:8080", "toygres serve HTTP Client Surface address")
	}

	instanceCreateCmd.Flags().String("user", "postgres", "Database user name")
	instanceCreateCmd.Flags().String("password", "", "Database user password (required)")
	instanceCreateCmd.Flags().String("postgres-version", "", "PostgreSQL major version")
	instanceCreateCmd.Flags().Int("storage-gb", 0, "Persistent volume size in GiB")
	instanceCreateCmd.Flags().Bool("load-balancer", false, "Expose the instance via a LoadBalancer Service")
	instanceCreateCmd.Flags().String("dns-label", "", "DNS label to reserve for this instance")
	instanceCreateCmd.Flags().String("namespace", "", "Kubernetes namespace to deploy into")
	instanceCreateCmd.Flags().String("cpu-request", "", "Postgres container CPU request (e.g. 500m)")
	instanceCreateCmd.Flags().String("memory-request", "", "Postgres container memory request (e.g. 512Mi)")
	instanceCreateCmd.Flags().String("cpu-limit", "", "Postgres container CPU limit (e.g. 1)")
	instanceCreateCmd.Flags().String("memory-limit", "", "Postgres container memory limit (e.g. 1Gi)")

	instanceEventCmd.Flags().String("payload", "", "JSON payload to attach to the event")
}
