package main

import (
	"bytes"
	gocrypto "crypto"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/crypto"
	"github.com/munistream/signature/internal/domain"
)

type signOptions struct {
	keyPath, certPath string
	p12Path, password string
	payloadPath       string
	algorithm         string
}

// newSignCmd is the client side of the protocol: it signs a fetched
// payload and prints the envelope to submit.
func newSignCmd() *cobra.Command {
	o := &signOptions{}
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a signable payload and print the signature envelope",
		Example: `  signature-service sign --key key.pem --cert cert.pem --payload payload.json
  signature-service sign --p12 id.p12 --password secret --algorithm ECDSA-SHA256 --payload -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := runSign(cmd, o)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), env)
		},
	}
	cmd.Flags().StringVar(&o.keyPath, "key", "", "PEM private key (PKCS#1, PKCS#8 or SEC1)")
	cmd.Flags().StringVar(&o.certPath, "cert", "", "PEM certificate matching --key")
	cmd.Flags().StringVar(&o.p12Path, "p12", "", "PKCS#12 bundle holding key and certificate")
	cmd.Flags().StringVar(&o.password, "password", "", "PKCS#12 password")
	cmd.Flags().StringVar(&o.payloadPath, "payload", "-", "payload JSON file (- for stdin)")
	cmd.Flags().StringVar(&o.algorithm, "algorithm", string(domain.DefaultAlgorithm), "signature algorithm")
	return cmd
}

func runSign(cmd *cobra.Command, o *signOptions) (*domain.SignatureEnvelope, error) {
	key, certPEM, err := loadIdentity(o)
	if err != nil {
		return nil, err
	}
	s, err := crypto.FromKey(key, domain.Algorithm(o.algorithm))
	if err != nil {
		return nil, err
	}
	raw, err := readInput(o.payloadPath, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	payload, err := canonical.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	// accept the issue/fetch response wrapper as well as a bare payload
	if inner, ok := payload["signable_data"].(map[string]any); ok {
		payload = inner
	}
	return crypto.SignPayload(s, payload, certPEM)
}

func loadIdentity(o *signOptions) (gocrypto.Signer, string, error) {
	switch {
	case o.p12Path != "":
		data, err := readInput(o.p12Path, nil)
		if err != nil {
			return nil, "", err
		}
		return crypto.LoadPKCS12(data, o.password)
	case o.keyPath != "" && o.certPath != "":
		keyPEM, err := readInput(o.keyPath, nil)
		if err != nil {
			return nil, "", err
		}
		key, err := crypto.LoadPrivateKeyPEM(keyPEM)
		if err != nil {
			return nil, "", err
		}
		certPEM, err := readInput(o.certPath, nil)
		if err != nil {
			return nil, "", err
		}
		return key, string(certPEM), nil
	default:
		return nil, "", errors.New("either --p12 or both --key and --cert are required")
	}
}
