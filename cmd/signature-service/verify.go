package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/certificate"
	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/observability/logger"
	"github.com/munistream/signature/internal/verifier"
)

var errVerificationFailed = errors.New("verification failed")

func newVerifyCmd(o *rootOptions) *cobra.Command {
	var (
		instanceID, field    string
		payloadPath, envPath string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Print a verification report for a stored record or for local payload/envelope files",
		Example: `  signature-service verify --instance wf-1 --field approval_sig
  signature-service verify --payload payload.json --envelope envelope.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				rep *domain.VerificationReport
				err error
			)
			switch {
			case instanceID != "" && field != "":
				rep, err = verifyStored(cmd, o, instanceID, field)
			case payloadPath != "" && envPath != "":
				rep, err = verifyFiles(cmd, payloadPath, envPath)
			default:
				return errors.New("either --instance and --field, or --payload and --envelope are required")
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.OverallValid {
				return errVerificationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&instanceID, "instance", "", "workflow instance id of a stored record")
	cmd.Flags().StringVar(&field, "field", "", "signature field of a stored record")
	cmd.Flags().StringVar(&payloadPath, "payload", "", "signable payload JSON file (- for stdin)")
	cmd.Flags().StringVar(&envPath, "envelope", "", "signature envelope JSON file")
	return cmd
}

func verifyStored(cmd *cobra.Command, o *rootOptions, instanceID, field string) (*domain.VerificationReport, error) {
	a, err := bootstrap(cmd.Context(), o)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.svc.VerifyRecord(cmd.Context(), instanceID, field)
}

func verifyFiles(cmd *cobra.Command, payloadPath, envPath string) (*domain.VerificationReport, error) {
	raw, err := readInput(payloadPath, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	payload, err := canonical.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	rawEnv, err := readInput(envPath, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	var env domain.SignatureEnvelope
	if err := canonical.Unmarshal(rawEnv, &env); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	data, err := canonical.SigningBytes(payload)
	if err != nil {
		return nil, err
	}

	certs := certificate.New(certificate.Options{Logger: logger.Named("certificate")})
	v := verifier.New(certs, verifier.Options{Logger: logger.Named("verifier")})
	rep := v.CreateVerificationReport(data, &env)
	return &rep, nil
}
