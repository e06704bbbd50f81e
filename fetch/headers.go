package fetch

import "math/rand"

// browserProfile is a coherent (User-Agent, Sec-Ch-Ua, Sec-Ch-Ua-Platform)
// triple. Mixing fields across profiles produces headers real browsers
// never send together, which is itself a signal to the sites we poll —
// so profiles are chosen as whole units.
type browserProfile struct {
	userAgent       string
	secChUA         string
	secChUAPlatform string
	secChUAMobile   string
}

var profiles = []browserProfile{
	{
		userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		secChUA:         `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
		secChUAPlatform: `"Windows"`,
		secChUAMobile:   "?0",
	},
	{
		userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		secChUA:         `"Google Chrome";v="119", "Chromium";v="119", "Not?A_Brand";v="24"`,
		secChUAPlatform: `"Windows"`,
		secChUAMobile:   "?0",
	},
	{
		userAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		secChUA:         `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
		secChUAPlatform: `"macOS"`,
		secChUAMobile:   "?0",
	},
	{
		userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		secChUA:         `"Not_A Brand";v="8", "Chromium";v="120", "Microsoft Edge";v="120"`,
		secChUAPlatform: `"Windows"`,
		secChUAMobile:   "?0",
	},
}

// referers is the pool of plausible navigation origins; an empty entry
// means direct traffic (no Referer header, Sec-Fetch-Site: none).
var referers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
	"",
}

// randomHeaders builds a synchronized set of browser-like headers: the
// User-Agent and Client Hints always come from the same profile, and
// Sec-Fetch-Site tracks whether a Referer was chosen.
func randomHeaders() map[string]string {
	profile := profiles[rand.Intn(len(profiles))]
	referer := referers[rand.Intn(len(referers))]

	fetchSite := "cross-site"
	if referer == "" {
		fetchSite = "none"
	}

	// Accept-Encoding is deliberately left unset: net/http's Transport
	// only negotiates and transparently decompresses gzip when it sets
	// this header itself. Setting it here (and we cannot decode br at
	// all) would hand the fingerprinter compressed bytes.
	h := map[string]string{
		"User-Agent":                profile.userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            fetchSite,
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
		"Sec-Ch-Ua":                 profile.secChUA,
		"Sec-Ch-Ua-Mobile":          profile.secChUAMobile,
		"Sec-Ch-Ua-Platform":        profile.secChUAPlatform,
	}
	if referer != "" {
		h["Referer"] = referer
	}
	return h
}
