package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pennsieve/agent/internal/cli/health"
	"github.com/pennsieve/agent/internal/cli/output"
	"github.com/pennsieve/agent/internal/cli/timeutil"
)

var (
	statusOutput  string
	statusPidFile string
	statusPort    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Long: `Display the current status of the agent.

This command checks the PID file for a live process and queries the
status hub's /healthz endpoint for uptime and health.

Examples:
  # Check status (uses default settings)
  agent status

  # Check status with a custom status port
  agent status --status-port 12000

  # Output as JSON
  agent status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/agent/agent.pid)")
	statusCmd.Flags().IntVar(&statusPort, "status-port", 11235, "Status hub port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type agentStatus struct {
	Running   bool   `json:"running" yaml:"running"`
	PID       int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message   string `json:"message" yaml:"message"`
	StartedAt string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Healthy   bool   `json:"healthy" yaml:"healthy"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := agentStatus{Message: "agent is not running"}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	healthURL := fmt.Sprintf("http://localhost:%d/healthz", statusPort)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(healthURL)
	if err == nil {
		defer func() { _ = resp.Body.Close() }()

		var healthResp health.Response
		if err := json.NewDecoder(resp.Body).Decode(&healthResp); err == nil {
			status.Running = true
			status.Healthy = healthResp.Status == "healthy"
			status.StartedAt = healthResp.Data.StartedAt
			status.Uptime = healthResp.Data.Uptime
			if status.Healthy {
				status.Message = "agent is running and healthy"
			} else {
				status.Message = fmt.Sprintf("agent is running but unhealthy: %s", healthResp.Error)
			}
		} else {
			status.Running = true
			status.Message = "agent is running but health response invalid"
		}
	} else if status.Running {
		status.Message = "agent process exists but health check failed"
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status agentStatus) {
	pairs := [][2]string{
		{"Running", fmt.Sprintf("%v", status.Running)},
		{"Healthy", fmt.Sprintf("%v", status.Healthy)},
		{"Message", status.Message},
	}
	if status.PID != 0 {
		pairs = append(pairs, [2]string{"PID", strconv.Itoa(status.PID)})
	}
	if status.StartedAt != "" {
		pairs = append(pairs, [2]string{"Started", timeutil.FormatTime(status.StartedAt)})
	}
	if status.Uptime != "" {
		pairs = append(pairs, [2]string{"Uptime", timeutil.FormatUptime(status.Uptime)})
	}
	_ = output.SimpleTable(os.Stdout, pairs)
}
