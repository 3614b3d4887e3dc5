package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/driftlock/draftsync/pkg/draftstore"
	"github.com/driftlock/draftsync/pkg/draftsync"
	"github.com/driftlock/draftsync/pkg/remotehttp"
)

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <key>",
		Short: "Commit a persisted draft to its remote endpoint",
		Long: `Push sends the draft stored under <key> to the configured commit endpoint.
On success the draft is discarded; on failure it is kept for a later retry.`,
		Args: cobra.ExactArgs(1),
		RunE: runPush,
	}

	cmd.Flags().String("url", "", "commit endpoint (overrides config)")

	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	key := args[0]

	commitURL, _ := cmd.Flags().GetString("url")
	if commitURL == "" {
		commitURL = loadedCfg.Remote.CommitURL
	}

	if commitURL == "" {
		commitURL = loadedCfg.Remote.URL
	}

	if commitURL == "" {
		return errors.New("no commit endpoint: set remote.url in the config or pass --url")
	}

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.GetDraft(cmd.Context(), key); err != nil {
		if errors.Is(err, draftstore.ErrNotFound) {
			return fmt.Errorf("no draft under key %q", key)
		}

		return err
	}

	draft, err := draftstore.NewProvider[json.RawMessage](store, key, logger)
	if err != nil {
		return err
	}

	client, err := remotehttp.NewClient[json.RawMessage](remotehttp.Config{
		CommitURL:  commitURL,
		HTTPClient: &http.Client{Timeout: loadedCfg.Remote.Timeout.Std()},
		MaxRetries: uint64(loadedCfg.Remote.MaxRetries),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	settled := make(chan error, 1)

	// Write-only: no fetch endpoint is needed to push a stored draft.
	engine, err := draftsync.New(&draftsync.Config[json.RawMessage]{
		Commit: client.Commit,
		Draft:  draft,
		Hooks: draftsync.Hooks[json.RawMessage]{
			OnSettled: func(_ json.RawMessage, err error) { settled <- err },
		},
		Context: cmd.Context(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	statusf("pushing draft %q to %s\n", key, commitURL)

	engine.Save()

	if err := <-settled; err != nil {
		return fmt.Errorf("pushing draft %q: %w", key, err)
	}

	statusf("pushed draft %q\n", key)

	return nil
}
