package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/saworbit/brutesim/pkg/config"
	"github.com/saworbit/brutesim/pkg/recorder"
)

func newHistoryCmd(a *app) *cobra.Command {
	var journalDir string
	var session string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs from the journal, or print one run's attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if journalDir == "" {
				journalDir = config.LoadFromEnv().JournalDir
			}
			if journalDir == "" {
				return fmt.Errorf("journal-dir is required")
			}
			return runHistory(a.out, journalDir, session)
		},
	}

	cmd.Flags().StringVar(&journalDir, "journal-dir", "", "Directory of the run history journal")
	cmd.Flags().StringVar(&session, "session", "", "Session id, unique id prefix, or 'latest'")
	return cmd
}

func runHistory(w io.Writer, journalDir, session string) error {
	journal, err := recorder.OpenReadOnly(journalDir)
	if err != nil {
		return err
	}
	defer journal.Close()

	if session == "" {
		sessions, err := journal.Sessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		for _, meta := range sessions {
			fmt.Fprintf(w, "%s  %s  attempts=%d failed=%d  log=%s\n",
				meta.ID, meta.StartedAt().Format(bannerTime), meta.Attempts, meta.Failed, meta.LogPath)
		}
		return nil
	}

	meta, err := journal.Session(session)
	if err != nil {
		return err
	}
	records, err := journal.Records(meta.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Session %s - Started: %s\n", meta.ID, meta.StartedAt().Format(bannerTime))
	for _, rec := range records {
		fmt.Fprintln(w, rec.Line())
	}
	fmt.Fprintf(w, "Total attempts: %d, Failed attempts: %d\n", meta.Attempts, meta.Failed)
	return nil
}
