package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ham-and/social-graph-2802/internal/authbridge"
	"github.com/ham-and/social-graph-2802/internal/graph"
	"github.com/ham-and/social-graph-2802/internal/pacing"
	"github.com/ham-and/social-graph-2802/internal/server"
	"github.com/ham-and/social-graph-2802/internal/soundcloud"
)

const (
	commandUse              = "server"
	commandShortDescription = "Serve the social-graph exploration API over HTTP"
	envPrefix               = "SCGRAPH_SERVER"

	flagHostName        = "host"
	flagHostDescription = "Host interface for the HTTP server"
	flagPortName        = "port"
	flagPortDescription = "Port for the HTTP server"

	flagBaseURLName        = "api-base-url"
	flagBaseURLDescription = "Base URL of the upstream API"
	flagTokenName          = "oauth-token"
	flagTokenDescription   = "Bearer OAuth token for upstream requests"

	flagClientIDName            = "oauth-client-id"
	flagClientIDDescription     = "OAuth client id for the login flow"
	flagClientSecretName        = "oauth-client-secret"
	flagClientSecretDescription = "OAuth client secret for the login flow"
	flagRedirectURIName         = "oauth-redirect-uri"
	flagRedirectURIDescription  = "Registered OAuth callback URI"

	flagPaceName        = "pace-ms"
	flagPaceDescription = "Delay between upstream request batches in milliseconds"

	defaultHost             = "127.0.0.1"
	defaultPort             = 8080
	defaultPaceMilliseconds = 100

	errMessageLoggerCreate   = "create logger"
	errMessageClientCreate   = "create upstream client"
	errMessageExplorerCreate = "create explorer"
	errMessageListenAndServe = "listen and serve"

	logMessageStartingServer  = "starting HTTP server"
	logMessageServerStopped   = "server stopped"
	logMessageListenError     = "server listen failure"
	logMessageAuthBridgeOff   = "oauth login flow disabled, no client credentials configured"
	logFieldAddress           = "address"
	logFieldUpstreamBaseURL   = "upstream_base_url"
	logFieldPaceMillisecond   = "pace_ms"
	logFieldLoginFlowEnabled  = "login_flow_enabled"
)

func main() {
	cobra.CheckErr(newServerCommand().Execute())
}

func newServerCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE:  runServerCommand,
	}

	command.Flags().String(flagHostName, defaultHost, flagHostDescription)
	command.Flags().Int(flagPortName, defaultPort, flagPortDescription)
	command.Flags().String(flagBaseURLName, "", flagBaseURLDescription)
	command.Flags().String(flagTokenName, "", flagTokenDescription)
	command.Flags().String(flagClientIDName, "", flagClientIDDescription)
	command.Flags().String(flagClientSecretName, "", flagClientSecretDescription)
	command.Flags().String(flagRedirectURIName, "", flagRedirectURIDescription)
	command.Flags().Int(flagPaceName, defaultPaceMilliseconds, flagPaceDescription)

	for _, flagName := range []string{
		flagHostName,
		flagPortName,
		flagBaseURLName,
		flagTokenName,
		flagClientIDName,
		flagClientSecretName,
		flagRedirectURIName,
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

func runServerCommand(*cobra.Command, []string) error {
	logger, err := zap.NewProduction()
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

	exchanger := newExchangerFromEnvironment(logger)
	router, err := server.NewRouter(server.RouterConfig{
		Explorer:  explorer,
		Exchanger: exchanger,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	host := viper.GetString(flagHostName)
	port := viper.GetInt(flagPortName)
	address := fmt.Sprintf("%s:%d", host, port)
	logger.Info(logMessageStartingServer,
		zap.String(logFieldAddress, address),
		zap.String(logFieldUpstreamBaseURL, viper.GetString(flagBaseURLName)),
		zap.Int(logFieldPaceMillisecond, viper.GetInt(flagPaceName)),
		zap.Bool(logFieldLoginFlowEnabled, exchanger != nil),
	)

	httpServer := &http.Server{Addr: address, Handler: router}
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(logMessageListenError, zap.Error(err))
		return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
	}

	logger.Info(logMessageServerStopped)
	return nil
}

// newExchangerFromEnvironment builds the OAuth login bridge when credentials
// are configured; the API works without it as long as a bearer token is set.
func newExchangerFromEnvironment(logger *zap.Logger) *authbridge.Exchanger {
	clientID := viper.GetString(flagClientIDName)
	clientSecret := viper.GetString(flagClientSecretName)
	redirectURI := viper.GetString(flagRedirectURIName)
	if clientID == "" || clientSecret == "" || redirectURI == "" {
		logger.Info(logMessageAuthBridgeOff)
		return nil
	}

	exchanger, err := authbridge.NewExchanger(authbridge.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Logger:       logger,
	})
	if err != nil {
		logger.Warn(logMessageAuthBridgeOff, zap.Error(err))
		return nil
	}
	return exchanger
}
