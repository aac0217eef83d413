package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lab-scheduler.com/lab-scheduler/internal/jobs"
)

var jobNames = []string{
	jobs.JobGenerateTasks,
	jobs.JobGenerateMeetings,
	jobs.JobSweepExpirations,
	jobs.JobSendReminders,
}

var jobCmd = &cobra.Command{
	Use:   "job <name>",
	Short: "Run one named background job and exit",
	Long:  "Runs a single job under its lock: " + strings.Join(jobNames, ", "),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Println(".env file not found, using environment variables")
		}

		name := args[0]
		valid := false
		for _, n := range jobNames {
			if n == name {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown job %q, expected one of: %s", name, strings.Join(jobNames, ", "))
		}

		a := buildApp()
		return a.runner.Run(context.Background(), name)
	},
}

func init() {
	rootCmd.AddCommand(jobCmd)
}
