package httpserver

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/genericchat/backend/internal/domain"
)

const maxPreviewHTMLBytes = 2 * 1024 * 1024

func isBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 169 && ip4[1] == 254 {
			return true
		}
	}
	return false
}

func validatePreviewURL(targetURL string) error {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return fmt.Errorf("invalid url")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid url scheme")
	}
	hostname := strings.ToLower(parsedURL.Hostname())
	if hostname == "" || hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") || strings.HasSuffix(hostname, ".local") {
		return fmt.Errorf("target host is not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve host")
	}
	if len(ips) == 0 {
		return fmt.Errorf("host has no addresses")
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return fmt.Errorf("target host is not allowed")
		}
	}
	return nil
}

var previewClient = &http.Client{Timeout: 15 * time.Second}

// handleLinkPreview fetches a page and extracts the metadata used to build
// link_preview message content: title and description.
func handleLinkPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targetURL := r.URL.Query().Get("url")
		if targetURL == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}
		if err := validatePreviewURL(targetURL); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, targetURL, nil)
		if err != nil {
			http.Error(w, "invalid url", http.StatusBadRequest)
			return
		}
		req.Header.Set("Accept", "text/html")

		resp, err := previewClient.Do(req)
		if err != nil {
			http.Error(w, "failed to load page", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			http.Error(w, "failed to load page", http.StatusBadGateway)
			return
		}

		preview, err := extractLinkPreview(targetURL, io.LimitReader(resp.Body, maxPreviewHTMLBytes))
		if err != nil {
			http.Error(w, "failed to parse page", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

// extractLinkPreview walks the document for <title>, og:title and
// description meta tags.
func extractLinkPreview(pageURL string, r io.Reader) (domain.LinkPreviewPayload, error) {
	preview := domain.LinkPreviewPayload{URL: pageURL}

	doc, err := html.Parse(r)
	if err != nil {
		return preview, err
	}

	var title, ogTitle, description string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, property, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "name":
						name = attr.Val
					case "property":
						property = attr.Val
					case "content":
						content = attr.Val
					}
				}
				if property == "og:title" && ogTitle == "" {
					ogTitle = strings.TrimSpace(content)
				}
				if (name == "description" || property == "og:description") && description == "" {
					description = strings.TrimSpace(content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	preview.Title = ogTitle
	if preview.Title == "" {
		preview.Title = title
	}
	preview.Text = description
	return preview, nil
}
