// Package media classifies source links and turns engine format listings into quality choices.
package media

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Kind is the closed set of supported sources. The string value is the wire form
// used in callback tokens.
type Kind string

const (
	// KindYouTube is the primary video site.
	KindYouTube Kind = "youtube"
	// KindDailymotion is the secondary video site.
	KindDailymotion Kind = "dailymotion"
	// KindTikTok is the short-form site; it never offers a quality choice.
	KindTikTok Kind = "tiktok"
)

// ErrUnsupportedSource is returned for links no rule matches.
var ErrUnsupportedSource = errors.New("unsupported source")

// ParseKind validates a wire value.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindYouTube, KindDailymotion, KindTikTok:
		return k, nil
	}
	return "", ErrUnsupportedSource
}

// ShortForm reports whether downloads of this kind start without a format choice.
func (k Kind) ShortForm() bool { return k == KindTikTok }

// Rule maps host suffixes to a kind.
type Rule struct {
	Kind  Kind
	Hosts []string
}

// Classifier decides which kind a link belongs to. Rules are checked in order.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from explicit rules.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier recognizes the three supported sites.
func DefaultClassifier() *Classifier {
	return NewClassifier(
		Rule{Kind: KindYouTube, Hosts: []string{"youtube.com", "youtu.be"}},
		Rule{Kind: KindDailymotion, Hosts: []string{"dailymotion.com", "dai.ly"}},
		Rule{Kind: KindTikTok, Hosts: []string{"tiktok.com"}},
	)
}

// Classify returns the kind of link, or ErrUnsupportedSource.
func (c *Classifier) Classify(link string) (Kind, error) {
	host := hostOf(link)
	if host == "" {
		return "", ErrUnsupportedSource
	}
	for _, r := range c.rules {
		for _, h := range r.Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return r.Kind, nil
			}
		}
	}
	return "", ErrUnsupportedSource
}

func hostOf(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

var idPatterns = map[Kind]*regexp.Regexp{
	KindYouTube:     regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`),
	KindDailymotion: regexp.MustCompile(`(?:dailymotion\.com/video/|dai\.ly/)([a-zA-Z0-9]+)`),
	KindTikTok:      regexp.MustCompile(`tiktok\.com/.*?/video/(\d+)`),
}

// ExtractID pulls the media id out of a link, or "" when the link has none.
func ExtractID(kind Kind, link string) string {
	re, ok := idPatterns[kind]
	if !ok {
		return ""
	}
	if m := re.FindStringSubmatch(link); len(m) > 1 {
		return m[1]
	}
	return ""
}

// CanonicalURL rebuilds a fetchable link from kind and media id.
func CanonicalURL(kind Kind, mediaID string) (string, error) {
	id := url.PathEscape(mediaID)
	switch kind {
	case KindYouTube:
		return "https://www.youtube.com/watch?v=" + url.QueryEscape(mediaID), nil
	case KindDailymotion:
		return "https://www.dailymotion.com/video/" + id, nil
	case KindTikTok:
		return "https://www.tiktok.com/@/video/" + id, nil
	}
	return "", ErrUnsupportedSource
}
