package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftlock/draftsync/pkg/draftstore"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted drafts",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Print a draft's payload",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Discard a persisted draft",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListDrafts(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		return printDraftsJSON(records)
	}

	if len(records) == 0 {
		statusf("no drafts\n")
		return nil
	}

	printDraftsTable(records)

	return nil
}

// listJSONItem is the JSON output schema for a single draft in list output.
type listJSONItem struct {
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	UpdatedAt string `json:"updated_at"`
}

func printDraftsJSON(records []draftstore.Record) error {
	out := make([]listJSONItem, 0, len(records))
	for i := range records {
		out = append(out, listJSONItem{
			Key:       records[i].Key,
			Size:      int64(len(records[i].Payload)),
			UpdatedAt: time.Unix(0, records[i].UpdatedAt).UTC().Format(time.RFC3339),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printDraftsTable(records []draftstore.Record) {
	rows := make([][]string, 0, len(records))
	for i := range records {
		rows = append(rows, []string{
			records[i].Key,
			formatSize(int64(len(records[i].Payload))),
			formatTime(time.Unix(0, records[i].UpdatedAt)),
		})
	}

	printTable(os.Stdout, []string{"KEY", "SIZE", "UPDATED"}, rows)
}

func runShow(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.GetDraft(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	// Pretty-print JSON payloads; anything else is passed through raw.
	var pretty bytes.Buffer
	if json.Indent(&pretty, record.Payload, "", "  ") == nil {
		fmt.Println(pretty.String())
		return nil
	}

	os.Stdout.Write(record.Payload)
	fmt.Println()

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	key := args[0]

	// Report missing keys explicitly; a silent no-op rm is confusing.
	if _, err := store.GetDraft(cmd.Context(), key); err != nil {
		if errors.Is(err, draftstore.ErrNotFound) {
			return fmt.Errorf("no draft under key %q", key)
		}

		return err
	}

	if err := store.DeleteDraft(cmd.Context(), key); err != nil {
		return err
	}

	statusf("discarded draft %q\n", key)

	return nil
}
