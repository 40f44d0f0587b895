package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/identity"
	"github.com/jmerrifield20/ChainOfCustody/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL    string
	cfgFile      string
	callerToken  string
	callerID     string
	outputFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "custody",
	Short: "Chain of custody CLI",
	Long: `custody is the command-line interface for the evidence chain-of-custody ledger.

It records evidence items, their checkouts, checkins and removals, and
queries the tamper-evident history kept by a custodyd server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".custody"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("custody")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if callerToken == "" {
			callerToken = viper.GetString("token")
		}
		if callerID == "" {
			callerID = viper.GetString("identity")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.custody/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "custodyd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&callerToken, "token", "", "caller token (Bearer)")
	rootCmd.PersistentFlags().StringVar(&callerID, "as", "", "caller identity for servers without a token secret")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text or json")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an SDK client from the resolved flags and config.
func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if callerToken != "" {
		opts = append(opts, client.WithBearerToken(callerToken))
	}
	if callerID != "" {
		opts = append(opts, client.WithIdentity(callerID))
	}
	return client.New(serverURL, opts...)
}

// render prints v as indented JSON, or calls text for the text format.
func render(v any, text func(w *tabwriter.Writer)) error {
	switch outputFormat {
	case "json":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	case "text", "":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		text(w)
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", outputFormat)
	}
}

func printEntry(e *client.HistoryEntry) error {
	return render(e, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Seq:\t%d\n", e.Seq)
		fmt.Fprintf(w, "Item:\t%s\n", e.ItemID)
		fmt.Fprintf(w, "Case:\t%s\n", e.CaseID)
		fmt.Fprintf(w, "Action:\t%s\n", e.Action)
		fmt.Fprintf(w, "State:\t%s\n", e.State)
		if e.State == string(model.StateRemoved) {
			fmt.Fprintf(w, "Reason:\t%s\n", e.RemovalReason)
		}
		if e.ReleasedTo != "" {
			fmt.Fprintf(w, "Released to:\t%s\n", e.ReleasedTo)
		}
		fmt.Fprintf(w, "Actor:\t%s\n", e.Actor)
		fmt.Fprintf(w, "Time:\t%s\n", e.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(w, "Hash:\t%s\n", e.Hash)
	})
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSecret string
	tokenIssuer string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <identity>",
	Short: "Issue a caller token for an identity",
	Long: `Issue a signed caller token. The secret and issuer must match the
server's auth.token_secret and auth.issuer settings.

  custody token 0xpolice --secret "$CUSTODY_TOKEN_SECRET"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = viper.GetString("token_secret")
		}
		issuer, err := identity.NewCallerTokenIssuer(secret, tokenIssuer, tokenTTL)
		if err != nil {
			return err
		}
		token, err := issuer.Issue(model.Identity(strings.TrimSpace(args[0])))
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HMAC secret (default $CUSTODY_TOKEN_SECRET)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "custodyd", "token issuer")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the custody CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("custody %s\n", version)
	},
}
