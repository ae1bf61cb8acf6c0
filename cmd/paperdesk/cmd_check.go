package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	paperdesk "github.com/paperdesk/paperdesk-go"
	"github.com/paperdesk/paperdesk-go/rest"
)

var (
	testVerbose bool
	testJSON    bool
)

// TestResult holds the overall test results
type TestResult struct {
	Success  bool            `json:"success"`
	Services []ServiceStatus `json:"services"`
	Error    string          `json:"error,omitempty"`
	Duration string          `json:"duration"`
}

// ServiceStatus holds the status of a single service
type ServiceStatus struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Note    string `json:"note,omitempty"`
}

func testCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "test",
		Short: "Validate config and test connectivity to the API",
		Long: `Validate configuration and test connectivity to the paperdesk API.

Exit codes:
  0 - Config valid and API reachable
  1 - Configuration or connectivity check failed`,
		Run: cmdTest,
	}
	c.Flags().BoolVarP(&testVerbose, "verbose", "v", false, "Show latency for each check")
	c.Flags().BoolVar(&testJSON, "json", false, "Output results in JSON format")
	return c
}

func cmdTest(cmd *cobra.Command, args []string) {
	startTime := time.Now()
	var services []ServiceStatus

	conf, err := paperdesk.ReadConfig(cpath)
	if err != nil {
		outputFailure(err, services, startTime)
		os.Exit(1)
	}
	services = append(services, ServiceStatus{
		Name:   "config",
		Type:   "yaml",
		Status: "ok",
	})

	client, err := paperdesk.New(conf)
	if err != nil {
		outputFailure(err, services, startTime)
		os.Exit(1)
	}
	defer client.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err = client.Transport().Request(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil && !rest.IsNotFound(err) {
		services = append(services, ServiceStatus{
			Name:   "api",
			Type:   "http",
			Status: "failed",
			Note:   err.Error(),
		})
		outputFailure(err, services, startTime)
		os.Exit(1)
	}

	svc := ServiceStatus{
		Name:    "api",
		Type:    "http",
		Status:  "ok",
		Latency: time.Since(start).String(),
	}
	if rest.IsNotFound(err) {
		svc.Note = "no health endpoint, server reachable"
	}
	services = append(services, svc)

	outputSuccess(services, startTime)
}

func outputSuccess(services []ServiceStatus, start time.Time) {
	outputResult(TestResult{
		Success:  true,
		Services: services,
		Duration: time.Since(start).String(),
	})
}

func outputFailure(err error, services []ServiceStatus, start time.Time) {
	outputResult(TestResult{
		Success:  false,
		Services: services,
		Error:    err.Error(),
		Duration: time.Since(start).String(),
	})
}

func outputResult(result TestResult) {
	if testJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Println()
	for _, svc := range result.Services {
		status := "OK"
		if svc.Status == "failed" {
			status = "FAILED"
		}
		line := fmt.Sprintf("  %s (%s): %s", svc.Name, svc.Type, status)
		if svc.Latency != "" && testVerbose {
			line += fmt.Sprintf(" [%s]", svc.Latency)
		}
		if svc.Note != "" {
			line += fmt.Sprintf(" - %s", svc.Note)
		}
		fmt.Println(line)
	}
	fmt.Println()
	if result.Success {
		fmt.Printf("all checks passed in %s\n", result.Duration)
	} else {
		fmt.Printf("failed after %s: %s\n", result.Duration, result.Error)
	}
}
