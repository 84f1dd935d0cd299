package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicevoter",
		Short:         "Turn trending headlines into yes/no polls and crown a daily winner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(generateCmd())
	root.AddCommand(topicsCmd())
	root.AddCommand(questionCmd())
	root.AddCommand(voteCmd())
	root.AddCommand(crownCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func generateCmd() *cobra.Command {
	var (
		jsonOutput bool
		breaking   bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Collect headlines and store new trending topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(jsonOutput, breaking)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&breaking, "breaking", false, "only run if breaking news is detected")
	return cmd
}

func topicsCmd() *cobra.Command {
	var (
		jsonOutput bool
		category   string
		limit      int
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Show trending topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopics(jsonOutput, category, limit, all)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&category, "category", "", "only show one category")
	cmd.Flags().IntVar(&limit, "limit", 20, "max topics to show")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive topics")
	return cmd
}

func questionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "question",
		Short: "Show, promote and moderate poll questions",
	}

	var jsonOutput bool
	current := &cobra.Command{
		Use:   "current",
		Short: "Show the current question and its tally",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCurrentQuestion(jsonOutput)
		},
	}
	current.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	promote := &cobra.Command{
		Use:   "promote <topic-id>",
		Short: "Make a trending topic the current question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromote(args[0])
		},
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List user questions waiting for moderation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending()
		},
	}

	moderate := &cobra.Command{
		Use:   "moderate <question-id> <approved|rejected|pending>",
		Short: "Set the moderation status of a question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModerate(args[0], args[1])
		},
	}

	cmd.AddCommand(current, promote, pending, moderate)
	return cmd
}

func voteCmd() *cobra.Command {
	var (
		session string
		user    string
		topicID string
	)

	cmd := &cobra.Command{
		Use:   "vote [question-id yes|no]",
		Short: "Cast a vote on a question, or on a trending topic with --topic",
		Args: func(cmd *cobra.Command, args []string) error {
			if topicID != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if topicID != "" {
				return runTopicVote(topicID, user, session)
			}
			return runQuestionVote(args[0], args[1], user, session)
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "anonymous session id (default: a new one)")
	cmd.Flags().StringVar(&user, "user", "", "vote as this user id")
	cmd.Flags().StringVar(&topicID, "topic", "", "vote on this trending topic instead")
	return cmd
}

func crownCmd() *cobra.Command {
	var (
		date  string
		list  int
		speak bool
	)

	cmd := &cobra.Command{
		Use:   "crown",
		Short: "Crown today's top trending topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list > 0 {
				return runCrownList(list)
			}
			return runCrown(date, speak)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "crown for this day, YYYY-MM-DD (default: today)")
	cmd.Flags().IntVar(&list, "list", 0, "list the last N crowned trends instead")
	cmd.Flags().BoolVar(&speak, "speak", false, "synthesize the voice script to crown-<date>.mp3")
	return cmd
}

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show when topics were last and will next be generated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
