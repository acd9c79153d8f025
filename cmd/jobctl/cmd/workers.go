package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/butlernet/jobboard/pkg/models"
)

var (
	// Worker register flags
	workerID      string
	workerAddress string
	workerTags    []string
	workerMax     int
	workerRatio   float64
	workerFloor   float64
	workerETA     int
)

// workersCmd represents the workers command
var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Manage workers",
	Long:  `Commands for listing and registering bidding workers on the board.`,
}

// workersListCmd represents the workers list command
var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered workers",
	RunE:  runWorkersList,
}

// workersRegisterCmd represents the workers register command
var workersRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an auto-bidding worker",
	Long:  `Register a worker that bids automatically: a fraction of each matching job's budget, with a hard floor.`,
	RunE:  runWorkersRegister,
}

// workersRemoveCmd represents the workers remove command
var workersRemoveCmd = &cobra.Command{
	Use:   "remove <worker-id>",
	Short: "Unregister a worker",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkersRemove,
}

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.AddCommand(workersListCmd)
	workersCmd.AddCommand(workersRegisterCmd)
	workersCmd.AddCommand(workersRemoveCmd)

	workersRegisterCmd.Flags().StringVar(&workerID, "id", "", "worker id (generated if empty)")
	workersRegisterCmd.Flags().StringVar(&workerAddress, "address", "", "settlement address")
	workersRegisterCmd.Flags().StringSliceVar(&workerTags, "tags", nil, "capability tags (required)")
	workersRegisterCmd.Flags().IntVar(&workerMax, "max-concurrent", 1, "concurrency cap")
	workersRegisterCmd.Flags().Float64Var(&workerRatio, "bid-ratio", 0.80, "fraction of budget to quote")
	workersRegisterCmd.Flags().Float64Var(&workerFloor, "bid-floor", 1.0, "minimum quote")
	workersRegisterCmd.Flags().IntVar(&workerETA, "eta", 300, "promised completion time in seconds")
	workersRegisterCmd.MarkFlagRequired("tags")
}

type workersListResponse struct {
	Workers []models.RegisteredWorker `json:"workers"`
	Count   int                       `json:"count"`
}

func runWorkersList(cmd *cobra.Command, args []string) error {
	data, err := doRequest("GET", fmt.Sprintf("%s/workers", GetBoardURL()), nil)
	if err != nil {
		return err
	}

	var result workersListResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		fmt.Println(string(data))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Address", "Tags", "Max Concurrent", "Host")

	for _, worker := range result.Workers {
		host := worker.Labels["hostname"]
		table.Append(
			worker.WorkerID,
			worker.Address,
			strings.Join(worker.Tags, ","),
			fmt.Sprintf("%d", worker.MaxConcurrent),
			host,
		)
	}

	table.Render()
	fmt.Printf("\nTotal workers: %d\n", result.Count)
	return nil
}

func runWorkersRegister(cmd *cobra.Command, args []string) error {
	req := map[string]interface{}{
		"worker_id":      workerID,
		"address":        workerAddress,
		"tags":           workerTags,
		"max_concurrent": workerMax,
		"policy": map[string]interface{}{
			"bid_price_ratio":   workerRatio,
			"minimum_amount":    workerFloor,
			"estimated_seconds": workerETA,
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	data, err := doRequest("POST", fmt.Sprintf("%s/workers/register", GetBoardURL()), bytes.NewReader(payload))
	if err != nil {
		return err
	}

	var worker models.RegisteredWorker
	if err := json.Unmarshal(data, &worker); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		fmt.Println(string(data))
	} else {
		fmt.Printf("Worker %s registered (tags: %s)\n", worker.WorkerID, strings.Join(worker.Tags, ", "))
	}
	return nil
}

func runWorkersRemove(cmd *cobra.Command, args []string) error {
	workerID := args[0]
	if _, err := doRequest("DELETE", fmt.Sprintf("%s/workers/%s", GetBoardURL(), workerID), nil); err != nil {
		return err
	}
	fmt.Printf("Worker %s removed\n", workerID)
	return nil
}
