package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	caCrtName = "drwatch_ca.crt"
	crtName   = "drwatch.crt"
	keyName   = "drwatch.key"
)

// Options select how the confirmation endpoint is served over TLS.
// CertFile/KeyFile take priority over Dir. With AutoGenerate a self-signed
// pair is written into Dir when it does not exist yet.
type Options struct {
	Enabled      bool
	CertFile     string
	KeyFile      string
	Dir          string
	AutoGenerate bool
	MinVersion   string
	Hosts        []string
}

var ErrNoCertificate = errors.New("tls enabled but no certificate configured")

func parseVersion(ver string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(ver)) {
	case "", "default", "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported tls version %q", ver)
	}
}

// Validate checks options without touching the filesystem.
func (o Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	if _, err := parseVersion(o.MinVersion); err != nil {
		return err
	}
	if (o.CertFile == "") != (o.KeyFile == "") {
		return errors.New("tls cert_file and key_file must be set together")
	}
	if o.CertFile == "" && o.Dir == "" {
		return ErrNoCertificate
	}
	return nil
}

// Setup returns nil when TLS is disabled.
func Setup(o Options) (*tls.Config, error) {
	if !o.Enabled {
		return nil, nil
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	minVer, _ := parseVersion(o.MinVersion)

	certPath, keyPath := o.CertFile, o.KeyFile
	if certPath == "" {
		certPath = filepath.Join(o.Dir, crtName)
		keyPath = filepath.Join(o.Dir, keyName)
		if o.AutoGenerate && !exists(certPath, keyPath) {
			if err := os.MkdirAll(o.Dir, 0o750); err != nil {
				return nil, fmt.Errorf("create tls dir: %w", err)
			}
			hosts := o.Hosts
			if len(hosts) == 0 {
				hosts = []string{"localhost", "127.0.0.1"}
			}
			err := GenerateSelfSigned(CertConfig{
				CommonName:   hosts[0],
				Organization: "drwatch",
				Hosts:        hosts,
				NotAfter:     time.Now().AddDate(1, 0, 0),
				CertPath:     certPath,
				KeyPath:      keyPath,
				CACertPath:   filepath.Join(o.Dir, caCrtName),
			})
			if err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	if !exists(certPath, keyPath) {
		return nil, fmt.Errorf("certificate %s or key %s not found", certPath, keyPath)
	}

	// #nosec G402 min version is configurable down to 1.2
	return &tls.Config{
		GetCertificate: reloadingCertificate(certPath, keyPath),
		MinVersion:     minVer,
	}, nil
}

// reloadingCertificate reads the pair on every handshake so rotated
// certificates are picked up without a restart.
func reloadingCertificate(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert, err := tls.LoadX509KeyPair(filepath.Clean(certFile), filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
