package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harun/vigil/internal/config"
	"github.com/harun/vigil/pkg/webhook"
	"github.com/spf13/cobra"
)

var (
	webhookDescription string
	webhookTool        string
	webhookArgs        string
	webhookData        string
	webhookSecret      string
)

var webhookCmd = &cobra.Command{
	Use:     "webhook",
	Aliases: []string{"webhooks"},
	Short:   "Work with inbound webhook sources",
}

var webhookSendCmd = &cobra.Command{
	Use:   "send <source>",
	Short: "Push a signed trigger to a webhook source",
	Long: `Push a trigger to the daemon's /hooks/<source> endpoint, signed the way
an external sender must sign it.

The secret, signature header and algorithm come from the matching entry
under webhooks.sources in the config file. --webhook-secret overrides the
secret and signs with sha256 under the default header.

Examples:
  vigil webhook send alerts --description "Disk almost full"
  vigil webhook send alerts --tool trader --args '["sell","BTC",0.5]' --data '{"price":46000}'`,
	Args: cobra.ExactArgs(1),
	RunE: runWebhookSend,
}

func init() {
	webhookSendCmd.Flags().StringVarP(&webhookDescription, "description", "d", "", "what the notification says")
	webhookSendCmd.Flags().StringVar(&webhookTool, "tool", "", "reactive tool to propose")
	webhookSendCmd.Flags().StringVar(&webhookArgs, "args", "", "JSON array of arguments for --tool")
	webhookSendCmd.Flags().StringVar(&webhookData, "data", "", "JSON object attached to the notification")
	webhookSendCmd.Flags().StringVar(&webhookSecret, "webhook-secret", "", "HMAC secret (default from config)")

	webhookCmd.AddCommand(webhookSendCmd)
	rootCmd.AddCommand(webhookCmd)
}

// webhookPayload encodes the send flags as a trigger body
func webhookPayload() ([]byte, error) {
	p := webhook.Payload{
		Description: webhookDescription,
		ToolToCall:  webhookTool,
	}

	if webhookArgs != "" {
		if webhookTool == "" {
			return nil, fmt.Errorf("--args requires --tool")
		}
		if err := json.NewDecoder(strings.NewReader(webhookArgs)).Decode(&p.Arguments); err != nil {
			return nil, fmt.Errorf("--args must be a JSON array: %w", err)
		}
	}
	if webhookData != "" {
		if err := json.NewDecoder(strings.NewReader(webhookData)).Decode(&p.Data); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}

	return json.Marshal(p)
}

// webhookSigning resolves how a trigger for source is signed. An empty
// secret means the request goes out unsigned.
func webhookSigning(source string) (secret, header, algorithm string, err error) {
	if webhookSecret != "" {
		return webhookSecret, webhook.DefaultSignatureHeader, "", nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", "", "", err
	}
	for _, src := range cfg.Webhooks.Sources {
		if src.Source != source {
			continue
		}
		header = src.SignatureHeader
		if header == "" {
			header = webhook.DefaultSignatureHeader
		}
		return src.Secret, header, src.Algorithm, nil
	}
	return "", webhook.DefaultSignatureHeader, "", nil
}

func runWebhookSend(cmd *cobra.Command, args []string) error {
	source := args[0]

	body, err := webhookPayload()
	if err != nil {
		return err
	}

	secret, header, algorithm, err := webhookSigning(source)
	if err != nil {
		return err
	}

	var signature string
	if secret != "" {
		signature, err = webhook.Sign(body, secret, algorithm)
		if err != nil {
			return err
		}
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	accepted, err := client.SendWebhook(cmd.Context(), source, body, header, signature)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), accepted, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Accepted as notification %s (%s)\n", accepted.NotificationID, accepted.State)
	})
}
