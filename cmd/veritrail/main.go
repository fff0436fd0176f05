package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veritrail/veritrail/internal/alert"
	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/canonical"
	"github.com/veritrail/veritrail/internal/config"
	"github.com/veritrail/veritrail/internal/crypto"
	"github.com/veritrail/veritrail/internal/storage"
	"github.com/veritrail/veritrail/internal/vc"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "veritrail",
	Short: "Veritrail - Audit Trail and Verifiable Credentials for IoT Ledger Nodes",
	Long:  `A tamper-evident audit trail and verifiable-credential toolkit for permissioned IoT ledger nodes`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "veritrail.yaml", "config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(checkCmd)

	recordCmd.Flags().StringVar(&recordActor, "actor", "", "identifier of the acting party")
	recordCmd.Flags().StringVar(&recordDetails, "details", "", "free-text event details")
	recordCmd.Flags().StringArrayVar(&recordMeta, "meta", nil, "metadata pair key=value (repeatable)")
	recordCmd.MarkFlagRequired("actor")

	exportCmd.Flags().BoolVar(&exportToPostgres, "postgres", false, "ship records to the configured Postgres database")

	issueCmd.Flags().StringVar(&issueSubject, "subject", "", "subject identifier (DID or address)")
	issueCmd.Flags().StringArrayVar(&issueClaims, "claim", nil, "claim pair key=value (repeatable)")
	issueCmd.Flags().StringArrayVar(&issueTypes, "type", nil, "additional credential type (repeatable)")
	issueCmd.Flags().DurationVar(&issueExpires, "expires", 0, "credential lifetime (e.g. 8760h)")
	issueCmd.Flags().StringVar(&issueOut, "out", "", "output file (default stdout)")
	issueCmd.MarkFlagRequired("subject")

	checkCmd.Flags().StringVar(&checkKeyFile, "key", "", "issuer public key file (default issuer.public_key_file)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("veritrail v0.1.0")
		fmt.Println("Audit Trail and Verifiable Credentials for IoT Ledger Nodes")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the audit archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		store, err := storage.New(archivePath(cfg))
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		defer store.Close()

		if err := store.SetMetadata("node_id", cfg.Node.ID); err != nil {
			return fmt.Errorf("failed to store node id: %w", err)
		}

		fmt.Printf("Initialized veritrail node: %s\n", cfg.Node.ID)
		fmt.Printf("Data directory: %s\n", cfg.Node.DataDir)
		fmt.Printf("Archive path: %s\n", archivePath(cfg))

		return nil
	},
}

var (
	recordActor   string
	recordDetails string
	recordMeta    []string
)

var recordCmd = &cobra.Command{
	Use:   "record [event-type]",
	Short: "Append an audit entry to the archived chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := storage.New(archivePath(cfg))
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer store.Close()

		records, err := store.Records()
		if err != nil {
			return fmt.Errorf("failed to load archive: %w", err)
		}

		provider := crypto.NewSHA256Ed25519()
		log, err := audit.Restore(cfg.Node.ID, provider, records)
		if err != nil {
			return fmt.Errorf("archive failed verification: %w", err)
		}

		if cfg.Alerts.Enabled {
			log.SetSink(alert.NewManager(true, cfg.Alerts.SlackWebhook))
		} else {
			log.SetSink(alert.NewLogSink(os.Stderr))
		}

		metadata := make(map[string]canonical.Value, len(recordMeta))
		for _, pair := range recordMeta {
			key, value, err := parsePair(pair)
			if err != nil {
				return err
			}
			metadata[key] = value
		}

		entry, err := log.Append(audit.EventType(args[0]), recordActor, recordDetails, metadata)
		if err != nil {
			return fmt.Errorf("failed to append entry: %w", err)
		}

		if err := store.Archive(log.Export()); err != nil {
			return fmt.Errorf("failed to archive entry: %w", err)
		}

		fmt.Printf("Recorded %s by %s\n", entry.EventType, entry.Actor)
		fmt.Printf("Hash: %s\n", entry.Hash)

		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display archive status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := storage.New(archivePath(cfg))
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer store.Close()

		records, err := store.Records()
		if err != nil {
			return fmt.Errorf("failed to load archive: %w", err)
		}

		log, err := audit.Restore(cfg.Node.ID, crypto.NewSHA256Ed25519(), records)
		if err != nil {
			return fmt.Errorf("archive failed verification: %w", err)
		}

		stats := log.Stats()
		fmt.Printf("Node ID: %s\n", stats.NodeID)
		fmt.Printf("Total entries: %d\n", stats.TotalEntries)
		fmt.Printf("Last hash: %s\n", stats.LastHash)

		if len(stats.ByType) > 0 {
			fmt.Println("\nEntries by type:")
			for eventType, count := range stats.ByType {
				fmt.Printf("  %s: %d\n", eventType, count)
			}
		}

		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the archived audit chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		alerts := alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook)

		store, err := storage.New(archivePath(cfg))
		if err != nil {
			_ = alerts.SendSystemAlert("Archive open failure", err.Error(), "warning")
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer store.Close()

		records, err := store.Records()
		if err != nil {
			_ = alerts.SendSystemAlert("Archive read failure", err.Error(), "warning")
			return fmt.Errorf("failed to load archive: %w", err)
		}

		provider := crypto.NewSHA256Ed25519()

		previous := audit.GenesisHash
		for i, r := range records {
			entry := audit.Entry{
				Timestamp:    r.Timestamp,
				EventType:    r.EventType,
				Actor:        r.Actor,
				Details:      r.Details,
				Metadata:     r.Metadata,
				PreviousHash: r.PreviousHash,
				NodeID:       r.NodeID,
				Hash:         r.Hash,
			}

			if r.PreviousHash != previous {
				_ = alerts.SendChainBrokenAlert(cfg.Node.ID, i, previous, r.PreviousHash)
				fmt.Printf("❌ FAILED: chain broken at position %d\n", i)
				os.Exit(1)
			}
			if computed := entry.ComputeHash(provider); computed != r.Hash {
				_ = alerts.SendChainBrokenAlert(cfg.Node.ID, i, computed, r.Hash)
				fmt.Printf("❌ FAILED: hash mismatch at position %d\n", i)
				os.Exit(1)
			}

			previous = r.Hash
		}

		fmt.Printf("✅ OK: audit chain is intact (%d entries)\n", len(records))
		return nil
	},
}

var exportToPostgres bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived audit records as JSON or ship them to Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := storage.New(archivePath(cfg))
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer store.Close()

		records, err := store.Records()
		if err != nil {
			return fmt.Errorf("failed to load archive: %w", err)
		}

		log, err := audit.Restore(cfg.Node.ID, crypto.NewSHA256Ed25519(), records)
		if err != nil {
			return fmt.Errorf("archive failed verification: %w", err)
		}

		if exportToPostgres {
			if !cfg.HasDatabase() {
				return fmt.Errorf("no database configured")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			archiver, err := storage.NewPostgresArchiver(ctx, cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer archiver.Close(ctx)

			if err := archiver.EnsureSchema(ctx); err != nil {
				return err
			}

			inserted, err := archiver.Archive(ctx, log.Export())
			if err != nil {
				return err
			}

			fmt.Printf("Shipped %d records to Postgres\n", inserted)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		for record := range log.Export() {
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}
		}

		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 issuer key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		pub, priv, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}

		provider := crypto.NewSHA256Ed25519()

		pubFile := cfg.Issuer.PublicKeyFile
		if pubFile == "" {
			pubFile = filepath.Join(cfg.Node.DataDir, "issuer.pub")
		}
		privFile := cfg.Issuer.PrivateKeyFile
		if privFile == "" {
			privFile = filepath.Join(cfg.Node.DataDir, "issuer.key")
		}

		if err := os.WriteFile(pubFile, []byte(provider.HexEncode(pub)), 0644); err != nil {
			return fmt.Errorf("failed to write public key: %w", err)
		}
		if err := os.WriteFile(privFile, []byte(provider.HexEncode(priv)), 0600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}

		fmt.Printf("Public key:  %s\n", pubFile)
		fmt.Printf("Private key: %s\n", privFile)

		return nil
	},
}

var (
	issueSubject string
	issueClaims  []string
	issueTypes   []string
	issueExpires time.Duration
	issueOut     string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue and sign a verifiable credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Issuer.ID == "" {
			return fmt.Errorf("issuer.id is required to issue credentials")
		}

		provider := crypto.NewSHA256Ed25519()

		priv, err := readKeyFile(provider, cfg.Issuer.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read issuer private key: %w", err)
		}

		claims := make(map[string]canonical.Value, len(issueClaims))
		for _, pair := range issueClaims {
			key, value, err := parsePair(pair)
			if err != nil {
				return err
			}
			claims[key] = value
		}

		credential := vc.New(cfg.Issuer.ID, issueSubject, claims)
		for _, t := range issueTypes {
			if err := credential.AddType(t); err != nil {
				return err
			}
		}
		if issueExpires > 0 {
			if err := credential.SetExpiration(issueExpires); err != nil {
				return err
			}
		}

		if err := credential.Sign(provider, priv); err != nil {
			return err
		}

		data, err := json.MarshalIndent(credential, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal credential: %w", err)
		}

		if issueOut != "" {
			if err := os.WriteFile(issueOut, data, 0644); err != nil {
				return fmt.Errorf("failed to write credential: %w", err)
			}
			fmt.Printf("Issued credential %s\n", credential.ID)
			return nil
		}

		fmt.Println(string(data))
		return nil
	},
}

var checkKeyFile string

var checkCmd = &cobra.Command{
	Use:   "check [credential-file]",
	Short: "Verify a credential's signature against an issuer public key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		provider := crypto.NewSHA256Ed25519()

		keyFile := checkKeyFile
		if keyFile == "" {
			keyFile = cfg.Issuer.PublicKeyFile
		}
		pub, err := readKeyFile(provider, keyFile)
		if err != nil {
			return fmt.Errorf("failed to read public key: %w", err)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read credential: %w", err)
		}

		var credential vc.Credential
		if err := json.Unmarshal(data, &credential); err != nil {
			return fmt.Errorf("failed to parse credential: %w", err)
		}

		if !credential.Verify(provider, pub) {
			fmt.Println("❌ INVALID: signature does not verify")
			os.Exit(1)
		}

		fmt.Printf("✅ VALID: %s\n", credential.ID)
		fmt.Printf("Issuer: %s\n", credential.Issuer)
		fmt.Printf("Subject: %s\n", credential.Subject.ID)
		if credential.ExpirationDate != nil {
			fmt.Printf("Expires: %s\n", credential.ExpirationDate.Format(time.RFC3339))
		}

		return nil
	},
}

func archivePath(cfg *config.Config) string {
	return filepath.Join(cfg.Node.DataDir, "veritrail.db")
}

func readKeyFile(provider *crypto.SHA256Ed25519, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("key file path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return provider.HexDecode(strings.TrimSpace(string(data)))
}

// parsePair splits "key=value" and types the value: bool and numeric
// literals become tagged bool/int/float values, everything else stays a
// string.
func parsePair(pair string) (string, canonical.Value, error) {
	key, raw, found := strings.Cut(pair, "=")
	if !found || key == "" {
		return "", canonical.Value{}, fmt.Errorf("invalid key=value pair: %s", pair)
	}

	if raw == "true" || raw == "false" {
		return key, canonical.Bool(raw == "true"), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return key, canonical.Int(i), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return key, canonical.Float(f), nil
	}

	return key, canonical.String(raw), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
