package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	watchServerURL string
	watchInterval  time.Duration
	watchAttempts  int
)

// watchCmd polls a job's status and renders its progress in the terminal.
// The default policy matches the web client: a 2 second interval with 300
// attempts, i.e. a 10 minute ceiling before giving up. Giving up is a local
// outcome only; the server-side job is left untouched.
var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Poll a job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchServerURL, "server", "http://localhost:8080", "scribe API base URL")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "polling interval")
	watchCmd.Flags().IntVar(&watchAttempts, "attempts", 300, "maximum polling attempts before giving up")
}

type jobStatusResponse struct {
	Status             string   `json:"status"`
	ProgressPercentage int      `json:"progress_percentage"`
	StatusMessage      string   `json:"status_message"`
	ResultText         string   `json:"result_text"`
	ResultFiles        []string `json:"result_files"`
	ErrorMessage       string   `json:"error_message"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	client := &http.Client{Timeout: 10 * time.Second}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("processing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	for attempt := 0; attempt < watchAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(watchInterval)
		}

		status, err := fetchStatus(client, jobID)
		if err != nil {
			return err
		}

		bar.Describe(status.StatusMessage)
		bar.Set(status.ProgressPercentage)

		switch status.Status {
		case "completed":
			bar.Finish()
			fmt.Println("completed")
			if status.ResultText != "" {
				fmt.Println()
				fmt.Println(status.ResultText)
			}
			if len(status.ResultFiles) > 0 {
				fmt.Println()
				fmt.Println("result files:")
				for _, f := range status.ResultFiles {
					fmt.Printf("  %s/api/download/%s/%s\n", watchServerURL, jobID, f)
				}
			}
			return nil
		case "failed":
			bar.Finish()
			return fmt.Errorf("job failed: %s", status.ErrorMessage)
		}
	}

	return fmt.Errorf("processing timeout: job %s still not finished after %d attempts", jobID, watchAttempts)
}

func fetchStatus(client *http.Client, jobID string) (*jobStatusResponse, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/job-status/%s", watchServerURL, jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("job %s not found", jobID)
	default:
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var status jobStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}
