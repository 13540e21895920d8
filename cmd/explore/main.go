package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ham-and/social-graph-2802/internal/graph"
	"github.com/ham-and/social-graph-2802/internal/pacing"
	"github.com/ham-and/social-graph-2802/internal/soundcloud"
)

const (
	commandUse              = "explore <profile-url>"
	commandShortDescription = "Analyze a profile's follow graph from the command line"
	envPrefix               = "SCGRAPH"

	flagBaseURLName            = "api-base-url"
	flagBaseURLDescription     = "Base URL of the upstream API"
	flagTokenName              = "oauth-token"
	flagTokenDescription       = "Bearer OAuth token for upstream requests"
	flagSuggestionsName        = "suggestions"
	flagSuggestionsDescription = "Fan out over mutual follows and print ranked follow suggestions"
	flagLikesName              = "likes"
	flagLikesDescription       = "Aggregate liked tracks across mutual follows"
	flagSortName               = "sort"
	flagSortDescription        = "Liked-track ordering: newest, oldest or popular"
	flagPaceName               = "pace-ms"
	flagPaceDescription        = "Delay between upstream request batches in milliseconds"

	defaultPaceMilliseconds = 100

	errMessageLoggerCreate   = "create logger"
	errMessageClientCreate   = "create upstream client"
	errMessageExplorerCreate = "create explorer"
	errMessageAnalyze        = "analyze profile"
	errMessageSuggestions    = "suggest follows"
	errMessageLikes          = "aggregate liked tracks"
	errMessageParseSort      = "parse sort policy"

	subjectHeaderFormat     = "%s (%s): %d followers, %d followings\n"
	splitSummaryFormat      = "mutual follows: %d, non-mutual followers: %d\n"
	partialFollowingsFormat = "note: followings partially loaded (%d of %d)\n"
	suggestionLineFormat    = "%3d. %s (%s): %d mutual connections via %s\n"
	truncationNoticeFormat  = "processed %d of %d mutual follows\n"
	likedTrackLineFormat    = "%3d. %s by %s (liked by %s)\n"
	progressLineFormat      = "\rprocessing mutual follows %d/%d"
)

func main() {
	cobra.CheckErr(newExploreCommand().Execute())
}

func newExploreCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		Args:  cobra.ExactArgs(1),
		RunE:  runExploreCommand,
	}

	command.Flags().String(flagBaseURLName, "", flagBaseURLDescription)
	command.Flags().String(flagTokenName, "", flagTokenDescription)
	command.Flags().Bool(flagSuggestionsName, false, flagSuggestionsDescription)
	command.Flags().Bool(flagLikesName, false, flagLikesDescription)
	command.Flags().String(flagSortName, string(graph.SortPopular), flagSortDescription)
	command.Flags().Int(flagPaceName, defaultPaceMilliseconds, flagPaceDescription)

	for _, flagName := range []string{
		flagBaseURLName,
		flagTokenName,
		flagSuggestionsName,
		flagLikesName,
		flagSortName,
		flagPaceName,
	} {
		bindFlagToViper(command, flagName)
	}

	cobra.OnInitialize(configureEnvironment)

	return command
}

func bindFlagToViper(command *cobra.Command, flagName string) {
	cobra.CheckErr(viper.BindPFlag(flagName, command.Flags().Lookup(flagName)))
}

func configureEnvironment() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func runExploreCommand(command *cobra.Command, arguments []string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	client, err := soundcloud.NewClient(soundcloud.Config{
		BaseURL: viper.GetString(flagBaseURLName),
		Token:   viper.GetString(flagTokenName),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageClientCreate, err)
	}

	paceInterval := time.Duration(viper.GetInt(flagPaceName)) * time.Millisecond
	explorer, err := graph.NewExplorer(graph.Config{
		Client: client,
		Pacer:  pacing.NewFixedInterval(paceInterval),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageExplorerCreate, err)
	}

	ctx := command.Context()
	analysis, err := explorer.Analyze(ctx, arguments[0])
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageAnalyze, err)
	}
	printAnalysis(command, analysis)

	if viper.GetBool(flagSuggestionsName) {
		result, err := explorer.SuggestFollows(ctx, analysis, func(progress graph.SuggestionProgress) {
			command.Printf(progressLineFormat, progress.Processed, progress.Total)
		})
		if err != nil {
			return fmt.Errorf("%s: %w", errMessageSuggestions, err)
		}
		command.Println()
		printSuggestions(command, result)
	}

	if viper.GetBool(flagLikesName) {
		policy, err := graph.ParseSortPolicy(viper.GetString(flagSortName))
		if err != nil {
			return fmt.Errorf("%s: %w", errMessageParseSort, err)
		}
		likedTracks, err := explorer.CollectLikedTracks(ctx, analysis, nil, policy)
		if err != nil {
			return fmt.Errorf("%s: %w", errMessageLikes, err)
		}
		printLikedTracks(command, likedTracks)
	}

	return nil
}

func printAnalysis(command *cobra.Command, analysis *graph.Analysis) {
	subject := analysis.Snapshot.Subject
	command.Printf(subjectHeaderFormat, subject.Username, subject.PermalinkURL, subject.FollowersCount, subject.FollowingsCount)
	command.Printf(splitSummaryFormat, len(analysis.Split.Mutual), len(analysis.Split.NonMutual))
	if !analysis.Snapshot.FollowingsComplete() {
		command.Printf(partialFollowingsFormat, len(analysis.Snapshot.Followings), analysis.Snapshot.TotalFollowings)
	}
}

func printSuggestions(command *cobra.Command, result graph.SuggestionResult) {
	if result.Truncated {
		command.Printf(truncationNoticeFormat, result.Processed, result.TotalMutuals)
	}
	for rank, suggestion := range result.Suggestions {
		command.Printf(suggestionLineFormat,
			rank+1,
			suggestion.Username,
			suggestion.PermalinkURL,
			suggestion.MutualCount,
			formatUsernames(suggestion.MutualConnections),
		)
	}
}

func printLikedTracks(command *cobra.Command, likedTracks []graph.LikedTrack) {
	for index, likedTrack := range likedTracks {
		command.Printf(likedTrackLineFormat,
			index+1,
			likedTrack.Title,
			likedTrack.User.Username,
			formatUsernames(likedTrack.LikedBy),
		)
	}
}

func formatUsernames(accounts []graph.Account) string {
	usernames := make([]string, 0, len(accounts))
	for _, account := range accounts {
		usernames = append(usernames, account.Username)
	}
	return strings.Join(usernames, ", ")
}
