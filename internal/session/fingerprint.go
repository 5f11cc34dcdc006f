package session

import (
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"
)

// Fingerprint shapes outgoing requests to look like one specific browser.
// Header set and TLS parameters must stay consistent for the lifetime of a
// session; mixing fingerprints across requests is itself a detection signal.
type Fingerprint interface {
	Name() string
	Apply(req *http.Request)
	TLSConfig() *tls.Config
}

// NewFingerprint returns the fingerprint registered under name.
func NewFingerprint(name string) (Fingerprint, error) {
	switch name {
	case "chrome", "":
		return NewChromeFingerprint(), nil
	case "safari":
		return NewSafariFingerprint(), nil
	default:
		return nil, fmt.Errorf("unknown fingerprint %q", name)
	}
}

// ChromeFingerprint mimics desktop Chrome on Windows.
type ChromeFingerprint struct {
	userAgent string
	secChUa   string
}

func NewChromeFingerprint() *ChromeFingerprint {
	versions := []string{"124", "125", "126"}
	v := versions[rand.Intn(len(versions))]
	return &ChromeFingerprint{
		userAgent: fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36", v),
		secChUa:   fmt.Sprintf(`"Chromium";v="%s", "Not?A_Brand";v="8", "Google Chrome";v="%s"`, v, v),
	}
}

func (f *ChromeFingerprint) Name() string { return "chrome" }

func (f *ChromeFingerprint) Apply(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Sec-Ch-Ua", f.secChUa)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
}

func (f *ChromeFingerprint) TLSConfig() *tls.Config {
	return &tls.Config{
		CipherSuites: []uint16{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
			tls.CurveP384,
		},
	}
}

// SafariFingerprint mimics desktop Safari on macOS. Safari does not send
// Sec-Ch-Ua client hints.
type SafariFingerprint struct {
	userAgent string
}

func NewSafariFingerprint() *SafariFingerprint {
	versions := []string{"17.4", "17.5", "17.6"}
	v := versions[rand.Intn(len(versions))]
	return &SafariFingerprint{
		userAgent: fmt.Sprintf("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15", v),
	}
}

func (f *SafariFingerprint) Name() string { return "safari" }

func (f *SafariFingerprint) Apply(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
}

func (f *SafariFingerprint) TLSConfig() *tls.Config {
	return &tls.Config{
		CipherSuites: []uint16{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
			tls.CurveP384,
		},
	}
}
