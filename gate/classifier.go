package gate

import "strings"

// Decision is the outcome of classifying a request — a sum type standing
// in for what a dynamically-typed host would express as a tagged union.
// Handlers switch on Kind and never re-derive it from the request.
type Decision struct {
	Kind     DecisionKind
	AgentKey string // set only when Kind == DecisionAgentRequest
}

// DecisionKind enumerates the classifier's possible outcomes, evaluated in
// strict first-match-wins order against the rules in spec §4.5.
type DecisionKind int

const (
	// DecisionPublicPath is an unconditional passthrough: robots.txt, the
	// well-known prefix, or an operator-configured allowlist entry.
	DecisionPublicPath DecisionKind = iota
	// DecisionChallengeVerify is a POST to /__challenge/verify.
	DecisionChallengeVerify
	// DecisionAgentRequest carries no Sec-Fetch-* header and is routed to
	// AgentFlow; AgentKey holds the (possibly empty, possibly truncated)
	// X-Agent-Key header value.
	DecisionAgentRequest
	// DecisionBrowserWithCookie carries a Sec-Fetch-* header and a valid
	// __agp_verified cookie.
	DecisionBrowserWithCookie
	// DecisionBrowserNoCookie carries a Sec-Fetch-* header but no valid
	// cookie and must be served the challenge page.
	DecisionBrowserNoCookie
)

const challengeVerifyPath = "/__challenge/verify"

// isPublicPath reports whether path is unconditionally exempt from gating.
func isPublicPath(path string, allowlist []string) bool {
	if path == "/robots.txt" {
		return true
	}
	if strings.HasPrefix(path, "/.well-known/") {
		return true
	}
	for _, p := range allowlist {
		if path == p {
			return true
		}
	}
	return false
}

// isBrowserRequest reports whether r carries a Sec-Fetch-Mode or
// Sec-Fetch-Dest header, the sole signal the spec uses to distinguish a
// browser from an automated client.
func isBrowserRequest(r Request) bool {
	return r.Header("Sec-Fetch-Mode") != "" || r.Header("Sec-Fetch-Dest") != ""
}

// classify applies the decision rules in strict order (first match wins).
func (g *Gate) classify(r Request) Decision {
	path := r.Path()

	if isPublicPath(path, g.cfg.PublicPathAllowlist) {
		return Decision{Kind: DecisionPublicPath}
	}

	if r.Method() == "POST" && path == challengeVerifyPath {
		return Decision{Kind: DecisionChallengeVerify}
	}

	if !isBrowserRequest(r) {
		key := r.Header("X-Agent-Key")
		if len(key) > agentKeyMaxLen {
			key = key[:agentKeyMaxLen]
		}
		return Decision{Kind: DecisionAgentRequest, AgentKey: key}
	}

	if validateCookie(g.cfg.ChallengeSecret, r.Header("Cookie"), g.clock()) {
		return Decision{Kind: DecisionBrowserWithCookie}
	}

	return Decision{Kind: DecisionBrowserNoCookie}
}
