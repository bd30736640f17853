package facts

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// S3Fact is the object storage descriptor published by the storage provider.
type S3Fact struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access-key"`
	SecretKey string `json:"secret-key"`
	Region    string `json:"region,omitempty"`
}

// Validate checks that every required field is non-empty.
func (f S3Fact) Validate() error {
	var missing []string
	if f.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if f.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if f.AccessKey == "" {
		missing = append(missing, "access-key")
	}
	if f.SecretKey == "" {
		missing = append(missing, "secret-key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Insecure reports whether the endpoint is plain http. Anything without an
// https scheme is treated as insecure.
func (f S3Fact) Insecure() bool {
	return !strings.HasPrefix(f.Endpoint, "https://")
}

// Host returns the endpoint with its scheme stripped. Tempo rejects
// fully-qualified endpoint URLs at startup.
func (f S3Fact) Host() string {
	if u, err := url.Parse(f.Endpoint); err == nil && u.Scheme != "" {
		return strings.TrimPrefix(f.Endpoint, u.Scheme+"://")
	}
	return f.Endpoint
}

// TLSFact is the certificate bundle published by the certificates provider.
// The private key itself never crosses this relation; workers fetch it via
// the secret reference.
type TLSFact struct {
	ServerCert string `json:"certificate"`
	CACert     string `json:"ca"`
	PrivKeyRef string `json:"privkey_secret_id"`
}

// Validate checks bundle completeness and that the server certificate
// parses and has not expired. Cryptographic correctness beyond that is the
// provider's problem.
func (f TLSFact) Validate() error {
	var missing []string
	if f.ServerCert == "" {
		missing = append(missing, "certificate")
	}
	if f.CACert == "" {
		missing = append(missing, "ca")
	}
	if f.PrivKeyRef == "" {
		missing = append(missing, "privkey_secret_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete certificate bundle, missing: %s", strings.Join(missing, ", "))
	}

	block, _ := pem.Decode([]byte(f.ServerCert))
	if block == nil {
		return errors.New("certificate is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	if time.Now().After(cert.NotAfter) {
		return fmt.Errorf("certificate expired at %s", cert.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// IngressFact is the external routing descriptor published by the ingress
// provider.
type IngressFact struct {
	ExternalHost string `json:"external_host"`
	Scheme       string `json:"scheme"`
}

// Validate checks the descriptor is complete.
func (f IngressFact) Validate() error {
	if f.ExternalHost == "" {
		return errors.New("external_host is empty")
	}
	if f.Scheme != "http" && f.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", f.Scheme)
	}
	return nil
}

// URL returns the external base URL.
func (f IngressFact) URL() string {
	return fmt.Sprintf("%s://%s", f.Scheme, f.ExternalHost)
}

// LoggingFact is one log push target published by a logging provider.
type LoggingFact struct {
	Endpoint string `json:"endpoint"`
}

// Validate checks the push endpoint is present.
func (f LoggingFact) Validate() error {
	if f.Endpoint == "" {
		return errors.New("endpoint is empty")
	}
	return nil
}

// RemoteWriteFact lists metrics remote-write targets published by a
// metrics provider.
type RemoteWriteFact struct {
	Endpoints []string `json:"endpoints"`
}

// Validate accepts any shape; an empty list simply contributes nothing.
func (f RemoteWriteFact) Validate() error { return nil }

// TracingFact lists the receiver protocols a tracing requirer asked for.
type TracingFact struct {
	Receivers []string `json:"receivers"`
}

// Validate accepts any protocol names; unknown ones are filtered when the
// receiver set is built, since a newer requirer may know protocols this
// coordinator does not.
func (f TracingFact) Validate() error { return nil }
