package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pricewatch/internal/jobs"
	"pricewatch/internal/types"
)

func newEnqueueCmd() *cobra.Command {
	var (
		key     string
		payload string
	)

	cmd := &cobra.Command{
		Use:   "enqueue KIND [DISCRIMINATOR...]",
		Short: "Enqueue an ingestion job",
		Long: `Enqueue an ingestion job of KIND.

The dedupe key is --key when given, otherwise KIND joined with the
discriminators. A psstore.region job without discriminators takes its key
from the payload's region, pages and page_size, the same key the scheduler
uses. Enqueueing an existing key resets that job to queued.`,
		Example: `  ingestctl enqueue steam.catalog all
  ingestctl enqueue psstore.region --payload '{"region":"en-us","pages":3,"page_size":100}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePayload(payload)
			if err != nil {
				return err
			}
			kind := args[0]
			dedupeKey := resolveKey(kind, key, args[1:], p)

			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			job, err := rt.Queue().Enqueue(cmd.Context(), kind, dedupeKey, p)
			if err != nil {
				return err
			}
			return printJob(cmd.OutOrStdout(), job)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Explicit dedupe key")
	cmd.Flags().StringVar(&payload, "payload", "", "Job payload as a JSON object")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		kind string
		wait bool
	)

	cmd := &cobra.Command{
		Use:   "status [DEDUPE_KEY]",
		Short: "Show a job, or per-status counts for a kind",
		Example: `  ingestctl status steam.catalog:all
  ingestctl status --kind psstore.region -o json
  ingestctl status steam.catalog:all --wait`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (kind == "") {
				return fmt.Errorf("pass either a dedupe key or --kind")
			}
			if wait && kind != "" {
				return fmt.Errorf("--wait applies to a single job, not --kind")
			}

			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if kind != "" {
				counts, err := rt.Store.CountByStatus(cmd.Context(), kind)
				if err != nil {
					return err
				}
				return printCounts(cmd.OutOrStdout(), kind, counts)
			}

			var job *types.IngestionJob
			if wait {
				job, err = waitTerminal(cmd.Context(), rt.Store.Get, args[0], statusPollInterval)
			} else {
				job, err = rt.Store.Get(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printJob(cmd.OutOrStdout(), job)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Count jobs of this kind by status")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll the job until it completes or fails")
	return cmd
}

// parsePayload decodes a JSON object. An empty string is an empty payload.
func parsePayload(raw string) (types.JobPayload, error) {
	if strings.TrimSpace(raw) == "" {
		return types.JobPayload{}, nil
	}
	var p types.JobPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidValue, "payload must be a JSON object", err)
	}
	if p == nil {
		p = types.JobPayload{}
	}
	return p, nil
}

func resolveKey(kind, explicit string, discriminators []string, payload types.JobPayload) string {
	if explicit != "" {
		return explicit
	}
	if kind == types.KindPSStoreRegion && len(discriminators) == 0 {
		region, okRegion := payload.String("region")
		pages, okPages := payload.Int("pages")
		pageSize, okSize := payload.Int("page_size")
		if okRegion && okPages && okSize {
			return jobs.RegionPageKey(region, pages, pageSize)
		}
	}
	return jobs.DedupeKey(kind, discriminators...)
}

// statusPollInterval is how often status --wait re-reads the job.
const statusPollInterval = 2 * time.Second

type jobGetter func(ctx context.Context, dedupeKey string) (*types.IngestionJob, error)

// waitTerminal re-reads the job every interval until it is completed or
// failed. On cancellation it returns the last state seen with ctx.Err().
func waitTerminal(ctx context.Context, get jobGetter, dedupeKey string, every time.Duration) (*types.IngestionJob, error) {
	for {
		job, err := get(ctx, dedupeKey)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(every):
		}
	}
}

func printJob(w io.Writer, job *types.IngestionJob) error {
	if structured() {
		return printOutput(w, job)
	}

	lastErr := ""
	if job.LastError != nil {
		lastErr = *job.LastError
	}
	lockedBy := ""
	if job.LockedBy != nil {
		lockedBy = *job.LockedBy
	}

	printTable(w,
		[]string{"ID", "Kind", "Dedupe Key", "Status", "Attempts", "Locked By", "Updated", "Last Error"},
		[][]string{{
			strconv.FormatInt(job.ID, 10),
			job.Kind,
			job.DedupeKey,
			string(job.Status),
			strconv.Itoa(job.Attempts),
			lockedBy,
			job.UpdatedAt.UTC().Format(time.RFC3339),
			lastErr,
		}},
	)
	return nil
}

func printCounts(w io.Writer, kind string, counts map[types.JobStatus]int) error {
	if structured() {
		out := make(map[string]int, len(counts))
		for s, n := range counts {
			out[string(s)] = n
		}
		return printOutput(w, map[string]any{"kind": kind, "counts": out})
	}

	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{kind, s, strconv.Itoa(counts[types.JobStatus(s)])})
	}
	printTable(w, []string{"Kind", "Status", "Count"}, rows)
	return nil
}
