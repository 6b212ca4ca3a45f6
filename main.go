package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"userdeck/common"
	"userdeck/database"
	"userdeck/services"
)

var (
	startedAt = time.Now()
	version   = "dev" // set via -ldflags at build time
)

var (
	debugLog = common.DebugLog
	infoLog  = common.InfoLog
	errorLog = common.ErrorLog
	fatalLog = common.FatalLog
)

func main() {
	addr := common.Env("USERDECK_BIND", ":8443")

	infoLog("userdeck %s starting with log level: %s", version, common.Env("USERDECK_LOG_LEVEL", "info"))
	debugLog("debug logging is enabled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionMgr, err := InitAuthFromEnv()
	if err != nil {
		fatalLog("auth setup failed: %v", err)
	}

	if err := database.InitDBFromEnv(ctx); err != nil {
		fatalLog("DB init failed: %v", err)
	}
	defer common.DB.Close()

	if err := services.Bootstrap(ctx); err != nil {
		fatalLog("bootstrap failed: %v", err)
	}

	startTokenSweeper(ctx)

	var handler http.Handler = makeRouter()
	if sessionMgr != nil {
		handler = sessionMgr.LoadAndSave(handler)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- serve(srv, addr) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalLog("server error: %v", err)
		}
	case <-ctx.Done():
		infoLog("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			errorLog("shutdown: %v", err)
		}
	}
}

func serve(srv *http.Server, addr string) error {
	if !common.EnvBool("USERDECK_TLS_ENABLE", "true") {
		infoLog("http: listening on %s (TLS disabled)", addr)
		return srv.ListenAndServe()
	}

	certFile := strings.TrimSpace(common.Env("USERDECK_TLS_CERT_FILE", ""))
	keyFile := strings.TrimSpace(common.Env("USERDECK_TLS_KEY_FILE", ""))

	if certFile != "" && keyFile != "" {
		infoLog("https: listening on %s (cert=%s)", addr, certFile)
		return srv.ListenAndServeTLS(certFile, keyFile)
	}

	if !common.EnvBool("USERDECK_TLS_SELF_SIGNED", "true") {
		return errors.New("TLS enabled but no cert files and self-signed disabled")
	}

	// Ephemeral self-signed (in-memory)
	certPEM, keyPEM, err := generateSelfSigned("userdeck.local")
	if err != nil {
		return err
	}
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return err
	}
	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		MinVersion:   tls.VersionTLS12,
	}
	infoLog("https: listening on %s (self-signed)", addr)
	return srv.ListenAndServeTLS("", "")
}

// startTokenSweeper clears expired password reset tokens in the background.
func startTokenSweeper(ctx context.Context) {
	interval := 1 * time.Hour
	if d, err := time.ParseDuration(common.Env("USERDECK_TOKEN_SWEEP_INTERVAL", "")); err == nil && d > 0 {
		interval = d
	}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if n, err := database.SweepExpiredTokens(ctx); err != nil {
					errorLog("sweep: reset tokens: %v", err)
				} else if n > 0 {
					debugLog("sweep: removed %d expired reset tokens", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

/* -------- TLS self-signed helper -------- */

func generateSelfSigned(cn string) ([]byte, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	serial, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	tpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{cn, "localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM, nil
}
