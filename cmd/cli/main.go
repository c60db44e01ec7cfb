package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secalert-agent/internal/classify"
	"github.com/secalert-agent/internal/config"
	"github.com/secalert-agent/internal/content"
	"github.com/secalert-agent/internal/dispatch"
	"github.com/secalert-agent/internal/feed"
	"github.com/secalert-agent/internal/match"
	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/pipeline"
	"github.com/secalert-agent/internal/reference"
	"github.com/secalert-agent/internal/storage"
	"github.com/secalert-agent/internal/storage/sqlite"
	"github.com/secalert-agent/pkg/logger"
	"github.com/secalert-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "secalert",
		Short: "Security-alert pipeline operator CLI",
		Long: `Manage feeds and subscriptions, run one-off polling and
classification passes, and preview which subscriptions an article
would be routed to.`,
		PersistentPreRunE: initializeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(articlesCmd())
	rootCmd.AddCommand(feedsCmd())
	rootCmd.AddCommand(subsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// buildPipeline wires the full processing chain the way the daemon does.
func buildPipeline() *pipeline.Pipeline {
	limiter := ratelimit.NewDefaultLimiter()
	dir := reference.NewDirectory(repo)
	tagger := reference.NewTagger(dir, log)
	classifier := classify.New(cfg.Classify.MinScore, tagger, log)
	matcher := match.New(dir, log)
	dispatcher := dispatch.NewLogDispatcher(log)
	fetcher := content.New(cfg.Content, nil, limiter, log)

	return pipeline.New(repo, fetcher, tagger, classifier, matcher, dispatcher, log)
}

// ============ POLL COMMAND ============

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll every due feed once and process new articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			limiter := ratelimit.NewDefaultLimiter()
			pipe := buildPipeline()
			poller := feed.New(cfg.Poller, repo, nil, limiter, pipe, log)

			result, err := poller.PollDue(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Poll Results ===\n")
			fmt.Printf("Feeds Due:        %d\n", result.FeedsDue)
			fmt.Printf("Feeds Polled:     %d\n", result.FeedsPolled)
			fmt.Printf("Feeds Failed:     %d\n", result.FeedsFailed)
			fmt.Printf("Items Seen:       %d\n", result.ItemsSeen)
			fmt.Printf("Items Skipped:    %d\n", result.ItemsSkipped)
			fmt.Printf("Articles Created: %d\n", result.ArticlesCreated)
			fmt.Printf("Duration:         %s\n", result.Duration)

			if len(result.Errors) > 0 {
				fmt.Printf("\nErrors:\n")
				for _, e := range result.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}

			return nil
		},
	}

	return cmd
}

// ============ CLASSIFY COMMAND ============

func classifyCmd() *cobra.Command {
	var articleID uint
	var limit int

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify held articles, or reclassify one by ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pipe := buildPipeline()

			if articleID > 0 {
				article, err := repo.GetArticleByID(ctx, articleID)
				if err != nil {
					return fmt.Errorf("failed to get article %d: %w", articleID, err)
				}
				if err := pipe.Reclassify(ctx, article); err != nil {
					return err
				}
				printArticle(article)
				return nil
			}

			result, err := pipe.SweepUnclassified(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Sweep Results ===\n")
			fmt.Printf("Seen:       %d\n", result.Seen)
			fmt.Printf("Classified: %d\n", result.Classified)
			fmt.Printf("Fallbacks:  %d\n", result.Fallbacks)
			fmt.Printf("Held:       %d\n", result.Held)
			fmt.Printf("Duration:   %s\n", result.Duration)

			if len(result.Errors) > 0 {
				fmt.Printf("\nErrors:\n")
				for _, e := range result.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}

			return nil
		},
	}

	cmd.Flags().UintVar(&articleID, "id", 0, "Reclassify a single article by ID")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum held articles to sweep")

	return cmd
}

// ============ MATCH COMMAND ============

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <article-id>",
		Short: "Preview which subscriptions an article matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid article ID %q", args[0])
			}

			article, err := repo.GetArticleByID(ctx, uint(id))
			if err != nil {
				return fmt.Errorf("failed to get article %d: %w", id, err)
			}
			if !article.Classified() {
				return fmt.Errorf("article %d is not classified yet, run 'classify --id %d' first", id, id)
			}

			subs, err := repo.ListActiveSubscriptions(ctx)
			if err != nil {
				return fmt.Errorf("failed to list subscriptions: %w", err)
			}

			dir := reference.NewDirectory(repo)
			matcher := match.New(dir, log)
			deliveries := matcher.Match(ctx, article, subs)

			fmt.Printf("\n=== Matches for Article %d (%d) ===\n\n", article.ID, len(deliveries))
			fmt.Printf("%s | %s/%s\n\n", article.Title, article.AlertType, article.Severity)
			for _, d := range deliveries {
				fmt.Printf("[%d] %s -> %s:%s\n", d.Subscription.ID, d.Subscription.SubscriberID,
					d.Subscription.TargetType, d.Subscription.TargetRef)
			}
			if len(deliveries) == 0 {
				fmt.Println("No matching subscriptions.")
			}

			return nil
		},
	}

	return cmd
}

// ============ ARTICLES COMMANDS ============

func articlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "List ingested articles",
	}

	cmd.AddCommand(articlesListCmd())
	return cmd
}

func articlesListCmd() *cobra.Command {
	var alertType string
	var unclassified bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			filter := storage.DefaultArticleFilter()
			filter.Limit = limit
			filter.Unclassified = unclassified

			if alertType != "" {
				t := models.AlertType(alertType)
				if !t.Valid() {
					return fmt.Errorf("unknown alert type %q", alertType)
				}
				filter.AlertType = &t
			}

			articles, err := repo.ListArticles(ctx, filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Articles (%d) ===\n\n", len(articles))
			for _, a := range articles {
				printArticle(a)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&alertType, "type", "", "Filter by alert type (breach, incident, mention)")
	cmd.Flags().BoolVar(&unclassified, "unclassified", false, "Only held articles")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum articles to show")

	return cmd
}

func printArticle(a *models.Article) {
	fmt.Printf("[%d] %s\n", a.ID, a.Title)
	if a.Classified() {
		conf := ""
		if a.Confidence != nil {
			conf = fmt.Sprintf(" | Confidence: %.2f", *a.Confidence)
		}
		fallback := ""
		if a.Fallback {
			fallback = " (fallback)"
		}
		fmt.Printf("    %s/%s%s%s\n", a.AlertType, a.Severity, conf, fallback)
	} else {
		fmt.Printf("    unclassified\n")
	}
	if len(a.Tags) > 0 {
		fmt.Printf("    Tags: %s\n", strings.Join(a.Tags, ", "))
	}
	fmt.Println()
}

// ============ FEEDS COMMANDS ============

func feedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage polled feeds",
	}

	cmd.AddCommand(feedsListCmd())
	cmd.AddCommand(feedsAddCmd())
	cmd.AddCommand(feedsDeactivateCmd())
	return cmd
}

func feedsListCmd() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			feeds, err := repo.ListFeeds(ctx, activeOnly)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Feeds (%d) ===\n\n", len(feeds))
			for _, f := range feeds {
				status := "active"
				if !f.IsActive {
					status = "inactive"
				}
				last := "never"
				if f.LastFetchedAt != nil {
					last = f.LastFetchedAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("[%d] %s (%s)\n", f.ID, f.Name, status)
				fmt.Printf("    URL: %s\n", f.URL)
				fmt.Printf("    Every %s | Last fetched: %s\n", f.Interval(), last)
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active feeds")
	return cmd
}

func feedsAddCmd() *cobra.Command {
	var name string
	var url string
	var interval int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			f := &models.Feed{
				Name:            name,
				URL:             url,
				IntervalMinutes: interval,
				IsActive:        true,
			}
			if err := repo.CreateFeed(ctx, f); err != nil {
				return fmt.Errorf("failed to create feed: %w", err)
			}

			fmt.Printf("Feed %d registered: %s\n", f.ID, f.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Feed name (required)")
	cmd.Flags().StringVar(&url, "url", "", "Feed URL (required)")
	cmd.Flags().IntVar(&interval, "interval", 30, "Polling interval in minutes")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("url")

	return cmd
}

func feedsDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <feed-id>",
		Short: "Stop polling a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid feed ID %q", args[0])
			}

			f, err := repo.GetFeedByID(ctx, uint(id))
			if err != nil {
				return fmt.Errorf("failed to get feed %d: %w", id, err)
			}
			f.IsActive = false
			if err := repo.UpdateFeed(ctx, f); err != nil {
				return fmt.Errorf("failed to update feed: %w", err)
			}

			fmt.Printf("Feed %d deactivated.\n", f.ID)
			return nil
		},
	}

	return cmd
}

// ============ SUBSCRIPTIONS COMMANDS ============

func subsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subs",
		Short: "Manage subscriptions",
	}

	cmd.AddCommand(subsListCmd())
	cmd.AddCommand(subsAddCmd())
	cmd.AddCommand(subsDeactivateCmd())
	return cmd
}

func subsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			subs, err := repo.ListActiveSubscriptions(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Subscriptions (%d) ===\n\n", len(subs))
			for _, s := range subs {
				filter := "all alert types"
				if len(s.AlertTypes) > 0 {
					filter = strings.Join(s.AlertTypes, ", ")
				}
				fmt.Printf("[%d] %s -> %s:%s\n", s.ID, s.SubscriberID, s.TargetType, s.TargetRef)
				fmt.Printf("    Alerts: %s\n", filter)
				fmt.Println()
			}

			return nil
		},
	}

	return cmd
}

func subsAddCmd() *cobra.Command {
	var subscriber string
	var targetType string
	var targetRef string
	var alertTypes []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			tt := models.TargetType(targetType)
			if !tt.Valid() {
				return fmt.Errorf("unknown target type %q (agency, company, keyword, location)", targetType)
			}
			for _, at := range alertTypes {
				if !models.AlertType(at).Valid() {
					return fmt.Errorf("unknown alert type %q (breach, incident, mention)", at)
				}
			}

			s := &models.Subscription{
				SubscriberID: subscriber,
				TargetType:   tt,
				TargetRef:    targetRef,
				AlertTypes:   models.StringSlice(alertTypes),
				IsActive:     true,
			}
			if err := repo.CreateSubscription(ctx, s); err != nil {
				return fmt.Errorf("failed to create subscription: %w", err)
			}

			fmt.Printf("Subscription %d created: %s -> %s:%s\n", s.ID, s.SubscriberID, s.TargetType, s.TargetRef)
			return nil
		},
	}

	cmd.Flags().StringVar(&subscriber, "subscriber", "", "Subscriber identifier (required)")
	cmd.Flags().StringVar(&targetType, "target-type", "", "Target type: agency, company, keyword or location (required)")
	cmd.Flags().StringVar(&targetRef, "target-ref", "", "Target reference: entity ID or keyword text (required)")
	cmd.Flags().StringSliceVar(&alertTypes, "alert-types", nil, "Alert type filter (empty means all)")
	cmd.MarkFlagRequired("subscriber")
	cmd.MarkFlagRequired("target-type")
	cmd.MarkFlagRequired("target-ref")

	return cmd
}

func subsDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <subscription-id>",
		Short: "Deactivate a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid subscription ID %q", args[0])
			}

			s, err := repo.GetSubscriptionByID(ctx, uint(id))
			if err != nil {
				return fmt.Errorf("failed to get subscription %d: %w", id, err)
			}
			s.IsActive = false
			if err := repo.UpdateSubscription(ctx, s); err != nil {
				return fmt.Errorf("failed to update subscription: %w", err)
			}

			fmt.Printf("Subscription %d deactivated.\n", s.ID)
			return nil
		},
	}

	return cmd
}
