package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"github.com/jmerrifield20/ethosguard/internal/identity"
	"github.com/jmerrifield20/ethosguard/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	token     string
)

// errInvalidChain makes the process exit non-zero after a failed check
// without cobra printing usage.
var errInvalidChain = errors.New("ledger failed verification")

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ethosctl",
	Short: "EthosGuard audit ledger CLI",
	Long: `ethosctl records model decisions in an EthosGuard ledger and audits
its hash chain, either through the server or offline from an export.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".ethosguard"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("ETHOSCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ethosguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "EthosGuard server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "producer token for writes")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(serverURL, opts...)
}

// ── record ───────────────────────────────────────────────────────────────────

var (
	recModel    string
	recVersion  string
	recSubject  string
	recFeatures []float64
	recOutput   float64
	recOutcome  string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a model decision in the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		res, err := c.RecordDecision(cmd.Context(), client.Decision{
			ModelID:      recModel,
			ModelVersion: recVersion,
			Subject:      recSubject,
			Features:     recFeatures,
			Output:       recOutput,
			Outcome:      recOutcome,
		})
		if err != nil {
			return fmt.Errorf("record decision: %w", err)
		}

		fmt.Printf("✓ Decision logged and signed\n\n")
		fmt.Printf("  Decision: %s\n", res.Decision.ID)
		fmt.Printf("  Position: %d\n", res.Entry.Position)
		fmt.Printf("  Hash:     %s\n", res.Entry.Hash)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recModel, "model", "", "Model identifier (e.g. credit_risk_v1)")
	recordCmd.Flags().StringVar(&recVersion, "model-version", "", "Model version")
	recordCmd.Flags().StringVar(&recSubject, "subject", "", "Subject the decision applies to")
	recordCmd.Flags().Float64SliceVar(&recFeatures, "features", nil, "Input features, comma separated")
	recordCmd.Flags().Float64Var(&recOutput, "output", 0, "Model output score")
	recordCmd.Flags().StringVar(&recOutcome, "outcome", "", "Resulting outcome (e.g. approved)")

	_ = recordCmd.MarkFlagRequired("model")
	_ = recordCmd.MarkFlagRequired("outcome")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the server to verify the whole chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Verify(cmd.Context())
		if err != nil {
			return err
		}
		ov, err := c.Overview(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(auditledger.Result{
			Valid:    res.Valid,
			Reason:   auditledger.Reason(res.Reason),
			Position: res.Position,
			Entries:  res.Entries,
		}, ov.Root)
	},
}

func printResult(res auditledger.Result, root string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "VALID\t%t\n", res.Valid)
	fmt.Fprintf(w, "ENTRIES\t%d\n", res.Entries)
	if root != "" {
		fmt.Fprintf(w, "ROOT\t%s\n", root)
	}
	if !res.Valid {
		fmt.Fprintf(w, "REASON\t%s\n", res.Reason)
		fmt.Fprintf(w, "POSITION\t%d\n", res.Position)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !res.Valid {
		return errInvalidChain
	}
	return nil
}

// ── entry ────────────────────────────────────────────────────────────────────

var entryPath string

var entryCmd = &cobra.Command{
	Use:   "entry <position>",
	Short: "Show a single ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := strconv.Atoi(args[0])
		if err != nil || pos < 0 {
			return fmt.Errorf("invalid position %q", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		e, err := c.Entry(cmd.Context(), pos)
		if err != nil {
			return err
		}

		if entryPath != "" {
			v := gjson.GetBytes(e.Payload, entryPath)
			if !v.Exists() {
				return fmt.Errorf("path %q not present in entry %d", entryPath, pos)
			}
			fmt.Println(v.Raw)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "POSITION\t%d\n", e.Position)
		fmt.Fprintf(w, "TIMESTAMP\t%s\n", e.Timestamp.Format(time.RFC3339Nano))
		fmt.Fprintf(w, "PREVIOUS\t%s\n", e.PrevHash)
		fmt.Fprintf(w, "HASH\t%s\n", e.Hash)
		fmt.Fprintf(w, "PAYLOAD\t%s\n", e.Payload)
		return w.Flush()
	},
}

func init() {
	entryCmd.Flags().StringVar(&entryPath, "path", "", "Print only this payload field (gjson path, e.g. model_id)")
}

// ── export / check ───────────────────────────────────────────────────────────

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download every entry as a JSON array for offline verification",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.Export(cmd.Context())
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		if out != os.Stdout {
			fmt.Fprintf(os.Stderr, "✓ %d entries written to %s\n", len(entries), exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
}

var checkCmd = &cobra.Command{
	Use:   "check <export.json>",
	Short: "Verify an exported ledger offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var entries []auditledger.Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}
		ledger, err := auditledger.Load(entries)
		if err != nil {
			return fmt.Errorf("load %s: %w", args[0], err)
		}
		res, err := ledger.Verify(cmd.Context())
		if err != nil {
			return err
		}
		root, err := ledger.Root(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(res, root)
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokProducer string
	tokSecret   string
	tokIssuer   string
	tokTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a producer token from the server's shared secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokSecret
		if secret == "" {
			secret = viper.GetString("token_secret")
		}
		issuer, err := identity.NewTokenIssuer([]byte(secret), tokIssuer, tokTTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(tokProducer, []string{identity.ScopeAppend})
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokProducer, "producer", "", "Producer name embedded as the token subject")
	tokenCmd.Flags().StringVar(&tokSecret, "secret", "", "Shared HS256 secret (default token_secret from config)")
	tokenCmd.Flags().StringVar(&tokIssuer, "issuer", "ethosguard", "Token issuer")
	tokenCmd.Flags().DurationVar(&tokTTL, "ttl", 24*time.Hour, "Token lifetime")

	_ = tokenCmd.MarkFlagRequired("producer")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ethosctl %s\n", version)
	},
}

func formatHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16] + "…"
}
