package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/butlernet/jobboard/pkg/models"
)

var (
	// Job post flags
	jobDescription string
	jobTags        []string
	jobBudget      float64
	jobPoster      string
	jobBidWindow   int
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage jobs",
	Long:  `Commands for posting, listing, and cancelling jobs on the board.`,
}

// jobsPostCmd represents the jobs post command
var jobsPostCmd = &cobra.Command{
	Use:   "post",
	Short: "Post a new job",
	Long:  `Post a new job to the board. The auction runs in the background; poll the result with "jobs describe".`,
	RunE:  runJobsPost,
}

// jobsListCmd represents the jobs list command
var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE:  runJobsList,
}

// jobsDescribeCmd represents the jobs describe command
var jobsDescribeCmd = &cobra.Command{
	Use:   "describe <job-id>",
	Short: "Show a job, its bids, and its auction result",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDescribe,
}

// jobsCancelCmd represents the jobs cancel command
var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel an open auction",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsPostCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsDescribeCmd)
	jobsCmd.AddCommand(jobsCancelCmd)

	jobsPostCmd.Flags().StringVar(&jobDescription, "description", "", "free-text job description")
	jobsPostCmd.Flags().StringSliceVar(&jobTags, "tags", nil, "capability tags the job requires (required)")
	jobsPostCmd.Flags().Float64Var(&jobBudget, "budget", 0, "maximum price in settlement units (required)")
	jobsPostCmd.Flags().StringVar(&jobPoster, "poster", "", "requester identity")
	jobsPostCmd.Flags().IntVar(&jobBidWindow, "bid-window", 0, "bid collection window in seconds")
	jobsPostCmd.MarkFlagRequired("tags")
	jobsPostCmd.MarkFlagRequired("budget")
}

func runJobsPost(cmd *cobra.Command, args []string) error {
	req := map[string]interface{}{
		"description":        jobDescription,
		"tags":               jobTags,
		"budget":             jobBudget,
		"poster":             jobPoster,
		"bid_window_seconds": jobBidWindow,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	data, err := doRequest("POST", fmt.Sprintf("%s/jobs", GetBoardURL()), bytes.NewReader(payload))
	if err != nil {
		return err
	}

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		fmt.Println(string(data))
	} else {
		fmt.Printf("Job %s posted (status: %s)\n", resp.JobID, resp.Status)
	}
	return nil
}

type jobsListResponse struct {
	Jobs  []models.JobListing `json:"jobs"`
	Count int                 `json:"count"`
}

func runJobsList(cmd *cobra.Command, args []string) error {
	data, err := doRequest("GET", fmt.Sprintf("%s/jobs", GetBoardURL()), nil)
	if err != nil {
		return err
	}

	var result jobsListResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		fmt.Println(string(data))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Status", "Tags", "Budget", "Posted")

	for _, job := range result.Jobs {
		table.Append(
			job.JobID,
			string(job.Status),
			strings.Join(job.Tags, ","),
			fmt.Sprintf("%.2f", job.Budget),
			job.CreatedAt.Format(time.RFC3339),
		)
	}

	table.Render()
	fmt.Printf("\nTotal jobs: %d\n", result.Count)
	return nil
}

func runJobsDescribe(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	jobData, err := doRequest("GET", fmt.Sprintf("%s/jobs/%s", GetBoardURL(), jobID), nil)
	if err != nil {
		return err
	}

	var job models.JobListing
	if err := json.Unmarshal(jobData, &job); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		fmt.Println(string(jobData))
	} else {
		fmt.Printf("Job:         %s\n", job.JobID)
		fmt.Printf("Status:      %s\n", job.Status)
		fmt.Printf("Tags:        %s\n", strings.Join(job.Tags, ", "))
		fmt.Printf("Budget:      %.2f\n", job.Budget)
		if job.Description != "" {
			fmt.Printf("Description: %s\n", job.Description)
		}
	}

	// The result only exists once the auction finished
	resultData, err := doRequest("GET", fmt.Sprintf("%s/jobs/%s/result", GetBoardURL(), jobID), nil)
	if err != nil {
		if !IsJSONOutput() {
			fmt.Println("\nAuction still running (no result yet)")
		}
		return nil
	}

	var result models.BidResult
	if err := json.Unmarshal(resultData, &result); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}

	if IsJSONOutput() {
		fmt.Println(string(resultData))
		return nil
	}

	fmt.Printf("\nOutcome: %s\n", result.Reason)
	if len(result.AllBids) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Bid", "Worker", "Amount", "ETA (s)", "Won")

		for _, bid := range result.AllBids {
			won := ""
			if result.WinningBid != nil && result.WinningBid.BidID == bid.BidID {
				won = "*"
			}
			table.Append(
				bid.BidID,
				bid.BidderID,
				fmt.Sprintf("%.2f", bid.Amount),
				fmt.Sprintf("%d", bid.EstimatedSeconds),
				won,
			)
		}
		table.Render()
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	data, err := doRequest("POST", fmt.Sprintf("%s/jobs/%s/cancel", GetBoardURL(), jobID), nil)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		fmt.Println(string(data))
	} else {
		fmt.Printf("Job %s cancelled\n", jobID)
	}
	return nil
}
