package apihttp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxProxiedThumbnailBytes = int64(5 * 1024 * 1024) // 5MB

var errThumbnailHost = errors.New("thumbnail host is not allowed")

func defaultThumbnailHosts() map[string]struct{} {
	return map[string]struct{}{
		"i.ytimg.com":   {},
		"i9.ytimg.com":  {},
		"yt3.ggpht.com": {},
	}
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/thumbnail" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	target, err := url.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	if err := validateThumbnailURL(s.thumbnailHosts, target); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := s.thumbnailClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch thumbnail")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
		return
	}
	if resp.ContentLength > maxProxiedThumbnailBytes {
		writeError(w, http.StatusBadGateway, "thumbnail too large")
		return
	}

	limited := io.LimitReader(resp.Body, maxProxiedThumbnailBytes)
	head := make([]byte, 512)
	n, readErr := io.ReadFull(limited, head)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		writeError(w, http.StatusBadGateway, "failed to read thumbnail")
		return
	}
	head = head[:n]

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(head)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		writeError(w, http.StatusBadGateway, "not an image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(head)
	_, _ = io.Copy(w, limited)
}

func newThumbnailClient(hosts map[string]struct{}) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext

	return &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(transport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return errors.New("stopped after 3 redirects")
			}
			return validateThumbnailURL(hosts, req.URL)
		},
	}
}

func validateThumbnailURL(hosts map[string]struct{}, u *url.URL) error {
	if u == nil {
		return errors.New("invalid url")
	}
	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme != "http" && scheme != "https" {
		return errors.New("unsupported url scheme")
	}
	if u.User != nil {
		return errThumbnailHost
	}
	if _, ok := hosts[strings.ToLower(strings.TrimSpace(u.Hostname()))]; !ok {
		return errThumbnailHost
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		return errThumbnailHost
	}
	return nil
}
