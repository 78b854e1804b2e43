package engine

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to Rod protocol resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adHosts are ad and tracking domains dropped when BlockAds is set.
// Subdomains of a listed host match too.
var adHosts = hostSet(
	// ad serving and exchanges
	"doubleclick.net", "googlesyndication.com", "googleadservices.com",
	"adnxs.com", "adsrvr.org", "amazon-adsystem.com", "criteo.com",
	"pubmatic.com", "rubiconproject.com", "openx.net", "casalemedia.com",
	"bidswitch.net", "media.net", "outbrain.com", "taboola.com",

	// analytics and tag managers
	"google-analytics.com", "googletagmanager.com", "googletagservices.com",
	"scorecardresearch.com", "quantserve.com", "chartbeat.com",
	"hotjar.com", "mixpanel.com", "segment.com", "segment.io",

	// social widgets and data brokers
	"connect.facebook.net", "ads-twitter.com", "addthis.com",
	"sharethis.com", "demdex.net", "krxd.net", "bluekai.com",
	"rlcdn.com", "consensu.org",
)

func hostSet(hosts ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	return set
}

// isAdDomain reports whether host or one of its parent domains is listed.
func isAdDomain(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for host != "" {
		if _, ok := adHosts[host]; ok {
			return true
		}
		_, parent, found := strings.Cut(host, ".")
		if !found {
			return false
		}
		host = parent
	}
	return false
}

// installHijack intercepts every request on page and fails the ones whose
// resource type is blocked or whose host is an ad domain. It returns nil when
// nothing would be blocked; otherwise the caller must Stop the router.
func installHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(h.Request.Type(), h.Request.URL().Hostname(), blocked, blockAds) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()
	return router
}

func shouldBlock(rt proto.NetworkResourceType, host string, blocked map[proto.NetworkResourceType]struct{}, blockAds bool) bool {
	if _, ok := blocked[rt]; ok {
		return true
	}
	return blockAds && isAdDomain(host)
}
