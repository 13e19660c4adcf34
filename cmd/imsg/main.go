package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Napageneral/imsg/internal/chatdb"
	"github.com/Napageneral/imsg/internal/checkpoint"
	"github.com/Napageneral/imsg/internal/config"
	"github.com/Napageneral/imsg/internal/logging"
	"github.com/Napageneral/imsg/internal/metrics"
	"github.com/Napageneral/imsg/internal/watch"
)

var version = "0.1.0-dev"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	dbPath    string
	logLevel  string
	logFormat string

	cfg     *config.Config
	metrics *metrics.Metrics
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "imsg",
		Short:        "imsg - read and watch the macOS Messages database",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := a.init()
			if err != nil {
				return err
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to chat.db (default from config)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "console or json")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := map[string]interface{}{
				"version": version,
				"go":      runtime.Version(),
			}
			return printJSON(cmd.OutOrStdout(), output)
		},
	}

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "Print imsg application paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := map[string]interface{}{
				"app_dir":      a.cfg.AppDir,
				"config_path":  a.cfg.ConfigPath,
				"state_path":   a.cfg.StatePath,
				"chat_db_path": a.cfg.ChatDBPath,
				"watch_paths":  watch.Paths(a.cfg.ChatDBPath),
			}
			return printJSON(cmd.OutOrStdout(), output)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(a.chatsCmd())
	rootCmd.AddCommand(a.historyCmd())
	rootCmd.AddCommand(a.reactionsCmd())
	rootCmd.AddCommand(a.attachmentsCmd())
	rootCmd.AddCommand(a.statsCmd())
	rootCmd.AddCommand(a.watchCmd())
	return rootCmd
}

// init resolves configuration and builds the logger the subcommand runs with.
func (a *app) init() (*zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if a.dbPath != "" {
		cfg.ChatDBPath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return logger, nil
}

func (a *app) openStore(ctx context.Context) (*chatdb.Store, error) {
	store, err := chatdb.Open(a.cfg.ChatDBPath, chatdb.Options{
		BusyTimeout: a.cfg.BusyTimeout,
		Logger:      logging.FromContext(ctx),
		Metrics:     a.metrics,
		HomeDir:     a.cfg.HomeDir,
	})
	if errors.Is(err, chatdb.ErrDatabaseNotFound) {
		return nil, fmt.Errorf("%w (grant Full Disk Access or pass --db)", err)
	}
	return store, err
}

// withStore opens the store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(store *chatdb.Store) error) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (a *app) chatsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List recent chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *chatdb.Store) error {
				chats, err := store.ListChats(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, c := range chats {
					if err := printJSON(cmd.OutOrStdout(), c); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of chats")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var (
		chatID       int64
		limit        int
		start, end   string
		participants []string
		reactions    bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print messages of one chat, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := chatdb.HistoryFilter{
				Limit:            limit,
				Participants:     participants,
				IncludeReactions: reactions,
			}
			var err error
			if filter.Start, err = parseTime(start); err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			if filter.End, err = parseTime(end); err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			return a.withStore(cmd.Context(), func(store *chatdb.Store) error {
				messages, err := store.Messages(cmd.Context(), chatID, filter)
				if err != nil {
					return err
				}
				for _, m := range messages {
					if err := printJSON(cmd.OutOrStdout(), m); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "chat ROWID")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of messages")
	cmd.Flags().StringVar(&start, "start", "", "only messages at or after this RFC3339 time")
	cmd.Flags().StringVar(&end, "end", "", "only messages before this RFC3339 time")
	cmd.Flags().StringSliceVar(&participants, "participant", nil, "only messages from these handles")
	cmd.Flags().BoolVar(&reactions, "reactions", false, "include reaction rows")
	_ = cmd.MarkFlagRequired("chat-id")
	return cmd
}

func (a *app) reactionsCmd() *cobra.Command {
	var guid string
	cmd := &cobra.Command{
		Use:   "reactions",
		Short: "Print the current reactions on a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *chatdb.Store) error {
				reactions, err := store.Reactions(cmd.Context(), guid)
				if err != nil {
					return err
				}
				for _, r := range reactions {
					if err := printJSON(cmd.OutOrStdout(), r); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&guid, "guid", "", "message GUID")
	_ = cmd.MarkFlagRequired("guid")
	return cmd
}

func (a *app) attachmentsCmd() *cobra.Command {
	var messageID int64
	cmd := &cobra.Command{
		Use:   "attachments",
		Short: "Print attachment metadata of a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *chatdb.Store) error {
				metas, err := store.Attachments(cmd.Context(), messageID)
				if err != nil {
					return err
				}
				for _, m := range metas {
					if err := printJSON(cmd.OutOrStdout(), m); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&messageID, "message-id", 0, "message ROWID")
	_ = cmd.MarkFlagRequired("message-id")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print message, chat and handle counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *chatdb.Store) error {
				st, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				output := map[string]interface{}{
					"stats":        st,
					"capabilities": store.Capabilities(),
				}
				return printJSON(cmd.OutOrStdout(), output)
			})
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var (
		chatID      int64
		sinceRowID  int64
		reactions   bool
		resume      bool
		debounce    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream new messages as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := logging.FromContext(ctx)

			if metricsAddr != "" {
				a.metrics = metrics.New()
				srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(a.metrics)}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			opts := watch.Options{
				ChatID:           chatID,
				IncludeReactions: reactions,
				Debounce:         a.cfg.Watch.Debounce,
				BatchLimit:       a.cfg.Watch.BatchLimit,
				MinPollInterval:  a.cfg.Watch.MinPollInterval,
				Logger:           logger,
				Metrics:          a.metrics,
			}
			if debounce > 0 {
				opts.Debounce = debounce
			}
			if cmd.Flags().Changed("since-rowid") {
				opts.StartRowID = &sinceRowID
			}

			var saver *cursorSaver
			if resume {
				cp, err := checkpoint.Open(a.cfg.StatePath)
				if err != nil {
					return err
				}
				defer cp.Close()
				saver = &cursorSaver{store: cp, key: checkpoint.Key(a.cfg.ChatDBPath, chatID)}
				if opts.StartRowID == nil {
					saved, ok, err := cp.Load(ctx, saver.key)
					if err != nil {
						return err
					}
					if ok {
						opts.StartRowID = &saved
					}
				}
			}

			return a.withStore(ctx, func(store *chatdb.Store) error {
				w := watch.New(store, watch.Paths(store.Path()), opts)
				events, err := w.Start(ctx)
				if err != nil {
					return err
				}
				logger.Info("watching chat.db",
					zap.String("session", w.Session()),
					zap.String("path", store.Path()),
					zap.Bool("resume", saver != nil),
				)
				defer saver.save(w.Cursor)
				defer w.Stop()
				return streamEvents(cmd.OutOrStdout(), events, saver)
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "only messages of this chat")
	cmd.Flags().Int64Var(&sinceRowID, "since-rowid", 0, "start after this ROWID instead of the newest message")
	cmd.Flags().BoolVar(&reactions, "reactions", false, "include reaction rows")
	cmd.Flags().BoolVar(&resume, "resume", false, "continue from the cursor saved by the previous watch")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet interval before polling (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

// cursorSaver writes delivered ROWIDs to the checkpoint store. A nil saver
// does nothing.
type cursorSaver struct {
	store *checkpoint.Store
	key   string
}

func (s *cursorSaver) save(cursor func() int64) {
	if s == nil {
		return
	}
	_ = s.store.Save(context.Background(), s.key, cursor())
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// streamEvents prints every message of the stream and returns its terminal
// error, if any.
func streamEvents(w io.Writer, events <-chan watch.Event, saver *cursorSaver) error {
	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
		if err := printJSON(w, ev.Message); err != nil {
			return err
		}
		rowID := ev.Message.RowID
		saver.save(func() int64 { return rowID })
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// printJSON writes data as one JSON line.
func printJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
