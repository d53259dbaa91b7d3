package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"workflowhook/internal/job"
	"workflowhook/internal/orchestrator/docker"

	"github.com/spf13/cobra"
)

type jobLister interface {
	List(ctx context.Context) ([]job.Listing, error)
	Status(ctx context.Context, h job.Handle) (job.RuntimeStatus, error)
}

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List workflow job containers and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lifecycle, err := docker.NewFromEnv(docker.LoadConfigFromEnv())
			if err != nil {
				return err
			}
			defer lifecycle.Close()

			catalog, err := job.NewCatalog(lifecycle, job.LoadConfigFromEnv())
			if err != nil {
				return err
			}
			return printJobs(cmd.Context(), cmd.OutOrStdout(), catalog)
		},
	}
}

// printJobs writes one row per job. A job that cannot be inspected is shown
// with its container state only.
func printJobs(ctx context.Context, out io.Writer, jobs jobLister) error {
	listings, err := jobs.List(ctx)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		fmt.Fprintln(out, "No workflow jobs.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCONTAINER\tSTATE\tEXIT\tPROGRESS")
	for _, l := range listings {
		exit, progress := "-", "-"
		if status, err := jobs.Status(ctx, l.Handle); err == nil {
			if !status.Running {
				exit = strconv.Itoa(status.ExitCode)
			}
			if status.Progress != nil {
				progress = strconv.FormatFloat(*status.Progress, 'f', 1, 64) + "%"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.Name, shortID(l.ContainerID), l.State, exit, progress)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
