package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/markview/internal/config"
	"github.com/JonMunkholm/markview/internal/store"
	_ "github.com/JonMunkholm/markview/internal/store/postgres" // Register drivers
	_ "github.com/JonMunkholm/markview/internal/store/sqlite"
)

var (
	eventsDays   int
	eventsLimit  int
	eventsDriver string
	eventsDSN    string
	eventsPurge  bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent activity from the activity store",
	Long: `List the most recent events recorded by markview-server, newest first.

The store is taken from the same environment as the server (STORE_DRIVER,
SQLITE_PATH, DATABASE_URL, .env); --driver and --dsn override it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		scfg := store.Config{
			Driver:          cfg.Store.Driver,
			DSN:             cfg.Store.DSN(),
			MaxConns:        int32(cfg.Store.MaxConns),
			MinConns:        int32(cfg.Store.MinConns),
			MaxConnLifetime: cfg.Store.MaxConnLifetime,
			MaxConnIdleTime: cfg.Store.MaxConnIdleTime,
		}
		if eventsDriver != "" {
			scfg.Driver = eventsDriver
		}
		if eventsDSN != "" {
			scfg.DSN = eventsDSN
		}

		st, err := store.Open(cmd.Context(), scfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		if eventsPurge {
			cutoff := time.Now().AddDate(0, 0, -cfg.Activity.RetentionDays)
			n, err := st.PurgeBefore(cmd.Context(), cutoff)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Purged %d events older than %s\n", n, cutoff.Format(time.DateOnly))
		}

		events, err := st.RecentEvents(cmd.Context(), eventsDays, eventsLimit)
		if err != nil {
			return fmt.Errorf("recent events: %w", err)
		}
		if len(events) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No events in the last %d days.\n", eventsDays)
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tEVENT\tDETAILS")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Type, formatPayload(e.Payload))
		}
		return tw.Flush()
	},
}

func init() {
	eventsCmd.Flags().IntVar(&eventsDays, "days", 7, "only events from the last N days")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 10, "maximum events to list")
	eventsCmd.Flags().StringVar(&eventsDriver, "driver", "", "store driver (sqlite or postgres)")
	eventsCmd.Flags().StringVar(&eventsDSN, "dsn", "", "store path or connection string")
	eventsCmd.Flags().BoolVar(&eventsPurge, "purge", false, "delete events past the retention window first")
	rootCmd.AddCommand(eventsCmd)
}

// formatPayload renders a payload as sorted key=value pairs.
func formatPayload(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(p[k])
		if err != nil {
			v = []byte(fmt.Sprint(p[k]))
		}
		parts = append(parts, k+"="+string(v))
	}
	return strings.Join(parts, " ")
}
