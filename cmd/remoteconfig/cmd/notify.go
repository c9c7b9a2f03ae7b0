package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-remoteconfig/pkg/invalidation"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Publish a change notification so listening servers refresh",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger(viper.GetString("log_level"))
		if err != nil {
			return err
		}
		topicID := viper.GetString("topic")
		if topicID == "" {
			return errors.New("topic is required")
		}
		cfg := &invalidation.PubsubListenerConfig{
			ProjectID:       viper.GetString("project"),
			CredentialsFile: viper.GetString("credentials_file"),
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		client, err := invalidation.NewPubsubClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		notifier, err := invalidation.NewPubsubNotifier(ctx, client, topicID, logger)
		if err != nil {
			return err
		}
		defer func() { _ = notifier.Stop(ctx) }()

		correlationID, err := notifier.Notify(ctx, viper.GetString("correlation_id"))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), correlationID)
		return nil
	},
}

func init() {
	f := notifyCmd.Flags()
	f.String("topic", "", "Topic the servers' subscriptions are attached to.")
	f.String("correlation_id", "", "Correlation ID to attach. Random when empty.")
	_ = viper.BindPFlags(f)

	RootCmd.AddCommand(notifyCmd)
}
