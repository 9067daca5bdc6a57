package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/munistream/signature/internal/certificate"
	"github.com/munistream/signature/internal/config"
	"github.com/munistream/signature/internal/crypto"
	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/observability/logger"
)

var errCertificateInvalid = errors.New("certificate is not valid for signing")

func newCertCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Issue test identities and check certificates for signing",
	}
	cmd.AddCommand(newCertIssueCmd(), newCertValidateCmd(o))
	return cmd
}

func newCertIssueCmd() *cobra.Command {
	var (
		opts            crypto.CertOptions
		algorithm       string
		days            int
		keyOut, certOut string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Generate a key and a self-signed signing certificate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.CommonName == "" {
				return errors.New("--cn is required")
			}
			s, err := crypto.NewSigner(domain.Algorithm(algorithm))
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			base := crypto.SigningCertOptions(opts.CommonName, now)
			opts.NotBefore = base.NotBefore
			opts.NotAfter = now.AddDate(0, 0, days)
			opts.KeyUsage = base.KeyUsage

			certPEM, err := crypto.IssueCertificate(s, opts)
			if err != nil {
				return err
			}
			keyPEM, err := crypto.EncodePrivateKeyPEM(s.PrivateKey())
			if err != nil {
				return err
			}
			if err := os.WriteFile(keyOut, keyPEM, 0o600); err != nil {
				return fmt.Errorf("write key: %w", err)
			}
			if err := os.WriteFile(certOut, []byte(certPEM), 0o644); err != nil {
				return fmt.Errorf("write certificate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", keyOut, certOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.CommonName, "cn", "", "subject common name")
	cmd.Flags().StringVar(&opts.Organization, "org", "", "subject organization")
	cmd.Flags().StringVar(&opts.Country, "country", "", "subject country code")
	cmd.Flags().StringVar(&opts.Email, "email", "", "subject alternative email")
	cmd.Flags().StringVar(&algorithm, "algorithm", string(domain.DefaultAlgorithm), "algorithm the key is generated for")
	cmd.Flags().IntVar(&days, "days", 365, "validity in days")
	cmd.Flags().StringVar(&keyOut, "key-out", "key.pem", "private key output (PKCS#8 PEM)")
	cmd.Flags().StringVar(&certOut, "cert-out", "cert.pem", "certificate output (PEM)")
	return cmd
}

func newCertValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a PEM, DER or base64 certificate for signing suitability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.configPath, o.envFile)
			if err != nil {
				return err
			}
			content, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			certs := certificate.New(certificate.Options{
				Logger:            logger.Named("certificate"),
				ExpiryWarningDays: cfg.Signature.ExpiryWarningDays,
				MinKeyBits:        cfg.Signature.MinKeyBits,
			})
			certPEM, err := certs.ParseCertificateFromFileContent(content)
			if err != nil {
				return err
			}
			res := certs.ValidateCertificateForSigning(certPEM)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return errCertificateInvalid
			}
			return nil
		},
	}
}
