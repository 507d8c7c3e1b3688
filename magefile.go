//go:build mage

package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Help

// Help displays available mage targets
func Help() error {
	fmt.Println("pathmesh-server - Docker E2E Test Automation")
	fmt.Printf("   Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Println()
	fmt.Println("Available targets:")
	fmt.Println()
	fmt.Println("  Testing:")
	fmt.Println("    mage e2e          - Run end-to-end tests against a running group server")
	fmt.Println("    mage ci           - Run full CI pipeline (build -> up -> test -> down)")
	fmt.Println()
	fmt.Println("  Docker:")
	fmt.Println("    mage build        - Build the Docker image")
	fmt.Println("    mage up           - Start containers")
	fmt.Println("    mage down         - Stop containers")
	fmt.Println("    mage logs         - Show container logs")
	fmt.Println()
	fmt.Println("  Utilities:")
	fmt.Println("    mage clean        - Remove containers and volumes")
	fmt.Println()
	fmt.Println("  Info:")
	fmt.Println("    mage -l           - List all targets")
	fmt.Println("    mage help         - Show this help")
	fmt.Println()
	return nil
}

// Build builds the Docker image.
func Build() error {
	fmt.Println("building docker image...")
	return sh.RunV("docker", "compose", "build")
}

// Up starts the Docker containers.
func Up() error {
	fmt.Println("starting docker containers...")
	return sh.RunV("docker", "compose", "up", "-d")
}

// Down stops the Docker containers.
func Down() error {
	fmt.Println("stopping docker containers...")
	return sh.RunV("docker", "compose", "down")
}

// Logs shows the container logs.
func Logs() error {
	return sh.RunV("docker", "compose", "logs", "-f")
}

// E2E runs end-to-end tests against a running group server.
func E2E() error {
	mg.Deps(ensureRunning)

	fmt.Println("=== E2E test for pathmesh-server ===")

	if err := testHealthCheck(); err != nil {
		return err
	}
	if err := testLiveness(); err != nil {
		return err
	}
	if err := testReadiness(); err != nil {
		return err
	}
	if err := testMetrics(); err != nil {
		return err
	}
	if err := testContainerStatus(); err != nil {
		return err
	}

	fmt.Println("=== E2E test summary ===")
	fmt.Println("all tests passed")
	fmt.Println("Health check: http://localhost:8080/health")
	fmt.Println("Metrics:      http://localhost:8080/metrics")
	return nil
}

// CI runs the full CI pipeline: build, up, test, down.
func CI() error {
	fmt.Println("running CI pipeline...")

	if err := Build(); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if err := Up(); err != nil {
		return fmt.Errorf("up failed: %w", err)
	}

	fmt.Println("waiting for services to be ready...")
	time.Sleep(5 * time.Second)

	testErr := E2E()

	if err := Down(); err != nil {
		fmt.Printf("warning: cleanup failed: %v\n", err)
	}

	if testErr != nil {
		return fmt.Errorf("tests failed: %w", testErr)
	}
	return nil
}

// Clean removes all containers and volumes.
func Clean() error {
	fmt.Println("cleaning up...")
	if err := Down(); err != nil {
		return err
	}
	return sh.RunV("docker", "compose", "down", "--volumes", "--remove-orphans")
}

func ensureRunning() error {
	out, err := sh.Output("docker", "ps", "--filter", "name=pathmesh-server", "--format", "{{.Status}}")
	if err != nil || !strings.Contains(out, "Up") {
		fmt.Println("container not running, starting it...")
		return Up()
	}
	return nil
}

func testHealthCheck() error {
	fmt.Println("[test] health check endpoint")

	out, err := sh.Output("curl", "-s", "http://localhost:8080/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	if err := json.Unmarshal([]byte(out), &health); err != nil {
		return fmt.Errorf("failed to parse health response: %w", err)
	}
	if health.Status != "healthy" {
		return fmt.Errorf("expected status 'healthy', got %q", health.Status)
	}

	fmt.Printf("health check passed (status=%s, uptime=%s)\n", health.Status, health.Uptime)
	return nil
}

func testLiveness() error {
	fmt.Println("[test] liveness probe")

	_, err := sh.Output("curl", "-sf", "http://localhost:8080/health/live")
	if err != nil {
		return fmt.Errorf("liveness probe failed: %w", err)
	}

	fmt.Println("liveness probe passed")
	return nil
}

func testReadiness() error {
	fmt.Println("[test] readiness probe")

	_, err := sh.Output("curl", "-sf", "http://localhost:8080/health/ready")
	if err != nil {
		return fmt.Errorf("readiness probe failed: %w", err)
	}

	fmt.Println("readiness probe passed")
	return nil
}

func testMetrics() error {
	fmt.Println("[test] metrics endpoint")

	out, err := sh.Output("curl", "-s", "http://localhost:8080/metrics")
	if err != nil {
		return fmt.Errorf("metrics endpoint failed: %w", err)
	}
	if !strings.Contains(out, "pathmesh_") {
		return fmt.Errorf("metrics do not contain expected pathmesh_ series")
	}

	fmt.Println("metrics endpoint accessible")
	return nil
}

func testContainerStatus() error {
	fmt.Println("[test] container status")

	out, err := sh.Output("docker", "ps", "--filter", "name=pathmesh-server", "--format", "{{.Status}}")
	if err != nil {
		return fmt.Errorf("failed to check container status: %w", err)
	}
	if !strings.Contains(out, "Up") {
		return fmt.Errorf("container is not running")
	}

	fmt.Printf("container is running (%s)\n", out)
	return nil
}
