// Package request implements the Request Builder: it turns the
// Subscription Set, Cursor, filter expression, heartbeat and merged
// state into the parameter bag a subscribe/unsubscribe call sends to
// the Transport.
//
// net/url is used deliberately here: nothing offers a better fit for
// percent-escaping a query string than the standard library.
package request

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/relaywire/subengine/cursor"
	"github.com/relaywire/subengine/subset"
)

// emptyChannelsSentinel is sent in the path when no data or presence
// channel is subscribed — the broker requires a non-empty path segment
// even though channel groups travel in the query string.
const emptyChannelsSentinel = ","

// Params is the assembled request: a path placeholder plus a query
// string.
type Params struct {
	ChannelsPath string
	Query        url.Values
}

// Input collects everything the builder needs.
type Input struct {
	Set                        *subset.Set
	Cursor                     cursor.Snapshot
	CursorPolicy               cursor.AcceptOpts
	FilterExpr                 string
	HeartbeatSeconds           int
	MergedState                map[string]json.RawMessage
	ManagePresenceListManually bool
	CallerQuery                url.Values
}

// Build assembles the parameter bag for one subscribe/unsubscribe call.
// The tt/tr it sends is not always Cursor.Current verbatim: when
// restoring under catch-up-on-restore (or reusing the list-change
// policy), cursor.EffectiveRequestToken anticipates the same reuse-last
// decision Accept will make on the response once it arrives.
func Build(in Input) Params {
	p := Params{
		ChannelsPath: channelsPath(in.Set),
		Query:        url.Values{},
	}

	tt, region := cursor.EffectiveRequestToken(in.Cursor, in.CursorPolicy)
	p.Query.Set("tt", strconv.FormatUint(tt, 10))
	if region > cursor.NoRegion {
		p.Query.Set("tr", strconv.Itoa(int(region)))
	}

	if groups := in.Set.Groups(); len(groups) > 0 {
		p.Query.Set("channel-group", strings.Join(groups, ","))
	}

	if in.HeartbeatSeconds > 0 {
		p.Query.Set("heartbeat", strconv.Itoa(in.HeartbeatSeconds))
	}

	state := in.MergedState
	if in.ManagePresenceListManually {
		state = filterToSubscribedObjects(state, in.Set)
	}
	if len(state) > 0 {
		if encoded, err := json.Marshal(state); err == nil {
			// Serialization failures are silently dropped from the
			// parameter bag. url.Values.Encode percent-escapes this JSON
			// document when the final query string is built.
			p.Query.Set("state", string(encoded))
		}
	}

	if in.FilterExpr != "" {
		p.Query.Set("filter-expr", in.FilterExpr)
	}

	mergeCallerQuery(p.Query, in.CallerQuery)
	return p
}

// channelsPath joins the union of data and presence channels.
func channelsPath(set *subset.Set) string {
	seen := make(map[string]struct{})
	var out []string
	for _, ch := range set.Channels() {
		if _, ok := seen[ch]; !ok {
			seen[ch] = struct{}{}
			out = append(out, ch)
		}
	}
	for _, ch := range set.Presence() {
		if _, ok := seen[ch]; !ok {
			seen[ch] = struct{}{}
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return emptyChannelsSentinel
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// filterToSubscribedObjects drops state keys that no longer name a
// channel, group, or presence channel currently in the set: managing
// the presence list manually filters the merged state down to the
// subscribed-objects union.
func filterToSubscribedObjects(state map[string]json.RawMessage, set *subset.Set) map[string]json.RawMessage {
	if len(state) == 0 {
		return state
	}
	allowed := make(map[string]struct{})
	for _, name := range set.All() {
		allowed[name] = struct{}{}
	}

	out := make(map[string]json.RawMessage)
	for k, v := range state {
		if _, ok := allowed[k]; ok {
			out[k] = v
		}
	}
	return out
}

// mergeCallerQuery adds every caller-supplied key the builder did not
// already set. Builder keys are never overridden.
func mergeCallerQuery(dst, caller url.Values) {
	for k, values := range caller {
		if _, exists := dst[k]; exists {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
