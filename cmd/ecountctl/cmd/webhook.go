package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/config"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/webhook"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage webhook registrations",
}

var testPayload string

var webhookTestCmd = &cobra.Command{
	Use:   "test <webhook-id>",
	Short: "Send a signed test delivery to a webhook endpoint",
	Long: `Sends a synchronous test event through the same signing and transport
path as real deliveries. The endpoint's fail count is not affected. Pass
--payload to deliver a specific sample body instead of the stock message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if testPayload != "" && !json.Valid([]byte(testPayload)) {
			return fmt.Errorf("--payload is not valid JSON")
		}
		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		cfg := config.FromEnv()
		deliverer := webhook.NewDeliverer(
			webhook.NewPgStore(pool),
			webhook.NewPgLogStore(pool),
			cfg.Webhook,
			logging.New("ecountctl"),
		)
		res, err := deliverer.SendTest(ctx, args[0], json.RawMessage(testPayload))
		if err != nil {
			return err
		}
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(res)
		}
		if res.Error != "" {
			fmt.Printf("delivery failed: status=%d latency=%dms error=%s\n", res.StatusCode, res.LatencyMs, res.Error)
			return nil
		}
		fmt.Printf("delivery ok: status=%d latency=%dms\n", res.StatusCode, res.LatencyMs)
		return nil
	},
}

var (
	createCustomer string
	createURL      string
	createSecret   string
	createEvents   []string
)

var webhookCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a webhook endpoint",
	Long: `Registers a new endpoint. Only a hash of the secret is stored; keep the
plaintext, the receiver needs it to verify signatures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		reg, err := webhook.NewPgStore(pool).Create(ctx, createCustomer, createURL, createSecret, createEvents)
		if err != nil {
			return err
		}
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(reg)
		}
		fmt.Println("webhook registered:", reg.ID)
		return nil
	},
}

func init() {
	webhookTestCmd.Flags().StringVar(&testPayload, "payload", "", "sample JSON payload for the test event")

	webhookCreateCmd.Flags().StringVar(&createCustomer, "customer", "", "customer ID")
	webhookCreateCmd.Flags().StringVar(&createURL, "url", "", "endpoint URL")
	webhookCreateCmd.Flags().StringVar(&createSecret, "secret", "", "plaintext signing secret")
	webhookCreateCmd.Flags().StringSliceVar(&createEvents, "events", nil, "subscribed events (empty = all)")
	webhookCreateCmd.MarkFlagRequired("customer")
	webhookCreateCmd.MarkFlagRequired("url")
	webhookCreateCmd.MarkFlagRequired("secret")

	webhookCmd.AddCommand(webhookTestCmd, webhookCreateCmd)
	rootCmd.AddCommand(webhookCmd)
}
