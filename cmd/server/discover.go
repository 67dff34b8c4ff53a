package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/app"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/discovery"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/quota"
)

func newDiscoverCmd() *cobra.Command {
	var (
		maxResults     int
		publishedAfter string
	)

	cmd := &cobra.Command{
		Use:   "discover <keyword>",
		Short: "Run one discovery request and print the enriched items as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := domain.DiscoveryRequest{
				Keyword:    args[0],
				MaxResults: maxResults,
			}
			parsed, err := discovery.ParsePublishedAfter(publishedAfter)
			if err != nil {
				return fmt.Errorf("invalid --published-after %q: %w", publishedAfter, err)
			}
			request.PublishedAfter = parsed

			cfg := app.LoadConfig()
			logger := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			deps := buildComponents(cfg, logger)
			defer func() { _ = deps.closeQuota() }()

			result, err := deps.discovery.Enrich(cmd.Context(), request)
			if err != nil {
				return err
			}
			if result.StatsDegraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: subscriber counts unavailable, reported as 0")
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(result.Items); err != nil {
				return err
			}

			if usage, err := deps.quota.Usage(cmd.Context()); err == nil {
				parts := make([]string, 0, len(usage.ByAPI))
				for _, api := range quota.SortedAPIs(usage) {
					parts = append(parts, fmt.Sprintf("%s=%d", api, usage.ByAPI[api]))
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "quota units (%s): %d [%s]\n", usage.Day, usage.Total, strings.Join(parts, " "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxResults, "max-results", domain.DefaultMaxResults, "number of videos to request (1-50)")
	cmd.Flags().StringVar(&publishedAfter, "published-after", "", "only videos published after this RFC 3339 timestamp or YYYY-MM-DD date")
	return cmd
}
