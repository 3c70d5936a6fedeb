package main

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/spf13/cobra"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/consent"
	"uptain-sync/internal/handler"
	"uptain-sync/internal/model"
	"uptain-sync/internal/scriptsync"
	"uptain-sync/internal/serialize"
)

// consentFlags are shared by every command that submits visitor consent.
type consentFlags struct {
	cookie   string
	accepted bool
	rejected bool
	header   string
}

func (f *consentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.cookie, "cookie", "", "Persisted consent cookie value")
	cmd.Flags().BoolVar(&f.accepted, "accepted", false, "Mark the tracker's consent group as accepted")
	cmd.Flags().BoolVar(&f.rejected, "rejected", false, "Mark the tracker's consent group as rejected")
	cmd.Flags().StringVar(&f.header, "consent-header", "", "Send consent as a "+consent.HeaderName+" header instead")
	cmd.MarkFlagsMutuallyExclusive("accepted", "rejected")
}

// input returns the body consent, or nil when no body flag was set.
func (f *consentFlags) input() *handler.ConsentInput {
	if f.cookie == "" && !f.accepted && !f.rejected {
		return nil
	}
	in := &handler.ConsentInput{Cookie: f.cookie}
	if f.accepted || f.rejected {
		v := f.accepted
		in.Accepted = &v
	}
	return in
}

func (f *consentFlags) headers(session string) map[string]string {
	h := map[string]string{}
	if f.header != "" {
		h[consent.HeaderName] = f.header
	}
	if session != "" {
		h[handler.SessionHeader] = session
	}
	return h
}

// =============================================================================
// SNAPSHOT / SCRIPT
// =============================================================================

var (
	statePath     string
	previousPath  string
	session       string
	snapConsent   consentFlags
	scriptConsent consentFlags
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Build the tracker snapshot for a storefront state",
	Long: `Send a storefront state (JSON, "-" for stdin) to the server and print
the data attributes the tracking script would carry.`,
	RunE: runSnapshot,
}

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Render the tracking script element for a storefront state",
	Long: `Render the script element for a storefront state. With --previous the
previous state is synced first and the output shows the update to --state.`,
	RunE: runScript,
}

func init() {
	for _, cmd := range []*cobra.Command{snapshotCmd, scriptCmd} {
		cmd.Flags().StringVar(&statePath, "state", "", "Storefront state JSON file (required)")
		cmd.Flags().StringVar(&session, "session", "", "Storefront session token for revenue and wishlist")
		cmd.MarkFlagRequired("state")
	}
	scriptCmd.Flags().StringVar(&previousPath, "previous", "", "State synced before --state")
	snapConsent.register(snapshotCmd)
	scriptConsent.register(scriptCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	var st aggregate.State
	if err := readJSONFile(statePath, &st); err != nil {
		return err
	}

	var resp handler.SnapshotResponse
	req := handler.PreviewRequest{State: st, Consent: snapConsent.input()}
	if err := doRequest("POST", "/snapshot", req, snapConsent.headers(session), &resp); err != nil {
		return err
	}

	if quiet {
		out, _ := json.Marshal(resp.Snapshot)
		fmt.Println(string(out))
		return nil
	}
	if !resp.Configured {
		printWarning("tracker not configured, no snapshot")
		return nil
	}
	printInfo("page %s, consent %s", resp.Page, resp.ConsentState)
	if !resp.Allowed {
		printWarning("consent blocks the tracker")
	}
	for _, a := range resp.Attributes {
		printRow(a.Name, a.Value)
	}
	return nil
}

func runScript(cmd *cobra.Command, args []string) error {
	req := handler.PreviewRequest{Consent: scriptConsent.input()}
	if err := readJSONFile(statePath, &req.State); err != nil {
		return err
	}
	if previousPath != "" {
		req.Previous = &aggregate.State{}
		if err := readJSONFile(previousPath, req.Previous); err != nil {
			return err
		}
	}

	var resp handler.ScriptResponse
	if err := doRequest("POST", "/script", req, scriptConsent.headers(session), &resp); err != nil {
		return err
	}

	if quiet {
		fmt.Println(resp.HTML)
		return nil
	}
	printInfo("sync state %s, %d attribute writes", resp.SyncState, resp.Mutations)
	if resp.HTML == "" {
		printWarning("no script element")
		return nil
	}
	fmt.Println(resp.HTML)
	for _, ev := range resp.Events {
		printSuccess("published %s", ev)
	}
	return nil
}

// =============================================================================
// CONSENT
// =============================================================================

var (
	consentGroup  string
	consentOptOut bool
	groupsPath    string
	resolveFlags  consentFlags
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Resolve tracker consent",
	Long: `Register the tracker cookie in its consent group, reconcile the persisted
consent cookie with the live selection and report whether tracking may run.`,
	RunE: runConsent,
}

func init() {
	consentCmd.Flags().StringVar(&consentGroup, "group", "", "Consent group (default: server setting)")
	consentCmd.Flags().BoolVar(&consentOptOut, "optout", false, "Treat the tracker as opt-out")
	consentCmd.Flags().StringVar(&groupsPath, "groups", "", "JSON file with the cookie bar's consent groups")
	resolveFlags.register(consentCmd)
}

func runConsent(cmd *cobra.Command, args []string) error {
	var body any
	if resolveFlags.header == "" {
		req := handler.ResolveConsentRequest{Group: consentGroup, Cookie: resolveFlags.cookie}
		if in := resolveFlags.input(); in != nil {
			req.Accepted = in.Accepted
		}
		if cmd.Flags().Changed("optout") {
			req.OptOut = &consentOptOut
		}
		if groupsPath != "" {
			if err := readJSONFile(groupsPath, &req.Groups); err != nil {
				return err
			}
		}
		body = req
	}

	var resp handler.ResolveConsentResponse
	if err := doRequest("POST", "/consent/resolve", body, resolveFlags.headers(""), &resp); err != nil {
		return err
	}

	if quiet {
		fmt.Println(resp.Allowed)
		return nil
	}
	printInfo("group %s: %s", resp.Group, resp.State)
	if resp.Registered {
		printSuccess("tracker cookie registered")
	}
	if resp.WroteBack {
		printSuccess("consent cookie updated: %s", resp.Cookie)
	}
	if resp.Allowed {
		printSuccess("tracking allowed")
	} else {
		printWarning("tracking blocked")
	}
	return nil
}

// =============================================================================
// LIVE SESSION
// =============================================================================

var (
	liveStatePath string
	liveConsent   consentFlags
	eventPath     string
	eventCart     string
	eventProduct  string
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Drive the server's live storefront session",
}

var liveStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Replace the live storefront state",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := handler.PreviewRequest{Consent: liveConsent.input()}
		if err := readJSONFile(liveStatePath, &req.State); err != nil {
			return err
		}
		if err := doRequest("PUT", "/live/state", req, nil, nil); err != nil {
			return err
		}
		printSuccess("state accepted")
		return nil
	},
}

var liveEventCmd = &cobra.Command{
	Use:   "event KIND",
	Short: "Send a storefront event (route-change, product-loaded, add-to-cart, ...)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := scriptsync.ParseEventKind(args[0])
		if !ok {
			return fmt.Errorf("unknown event %q", args[0])
		}
		ev := handler.LiveEvent{Kind: kind, Path: eventPath}
		if eventCart != "" {
			ev.Cart = &model.Cart{}
			if err := readJSONFile(eventCart, ev.Cart); err != nil {
				return err
			}
		}
		if eventProduct != "" {
			ev.Product = &model.Product{}
			if err := readJSONFile(eventProduct, ev.Product); err != nil {
				return err
			}
		}
		if err := doRequest("POST", "/live/events", ev, nil, nil); err != nil {
			return err
		}
		printSuccess("%s sent", kind)
		return nil
	},
}

var liveScriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Print the live session's script element",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp handler.LiveScript
		if err := doRequest("GET", "/live/script", nil, nil, &resp); err != nil {
			return err
		}
		if quiet {
			fmt.Println(resp.HTML)
			return nil
		}
		printInfo("sync state %s, %d attribute writes, %d events", resp.SyncState, resp.Mutations, len(resp.Events))
		fmt.Println(resp.HTML)
		return nil
	},
}

func init() {
	liveStateCmd.Flags().StringVar(&liveStatePath, "state", "", "Storefront state JSON file (required)")
	liveStateCmd.MarkFlagRequired("state")
	liveConsent.register(liveStateCmd)

	liveEventCmd.Flags().StringVar(&eventPath, "path", "", "Route path for route-change")
	liveEventCmd.Flags().StringVar(&eventCart, "cart", "", "Cart JSON file for add-to-cart")
	liveEventCmd.Flags().StringVar(&eventProduct, "product", "", "Product JSON file for product-loaded")

	liveCmd.AddCommand(liveStateCmd)
	liveCmd.AddCommand(liveEventCmd)
	liveCmd.AddCommand(liveScriptCmd)
}

// =============================================================================
// OFFLINE CONVERSION
// =============================================================================

var (
	decodeRemote bool
	encodeJSON   bool
	encodeHTML   bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode VALUE",
	Short: "Decode an attribute value in JSON, HTML-escaped JSON or compact encoding",
	Long: `Decode a wishlist, products or variants attribute value and print its
table rows. VALUE "-" reads stdin. With --remote the server decodes it.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

var encodeCmd = &cobra.Command{
	Use:   "encode FILE",
	Short: "Convert a JSON attribute value to the compact encoding",
	Args:  cobra.ExactArgs(1),
	RunE:  runEncode,
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeRemote, "remote", false, "Decode on the server")
	encodeCmd.Flags().BoolVar(&encodeJSON, "json", false, "Emit JSON instead of the compact encoding")
	encodeCmd.Flags().BoolVar(&encodeHTML, "html", false, "HTML-escape the output for use in an attribute")
}

func runDecode(cmd *cobra.Command, args []string) error {
	value := args[0]
	if value == "-" {
		data, err := readInput("-")
		if err != nil {
			return err
		}
		value = strings.TrimSpace(string(data))
	}

	var resp handler.DecodeResponse
	if decodeRemote {
		if err := doRequest("POST", "/debug/decode", handler.DecodeRequest{Value: value}, nil, &resp); err != nil {
			return err
		}
	} else {
		decoded, ok := serialize.DecodeLenient(value)
		if !ok {
			return fmt.Errorf("not a JSON or compact attribute value")
		}
		resp = handler.DecodeResponse{Decoded: decoded, Rows: serialize.ParseDebugRows(value)}
	}

	out, err := json.MarshalIndent(resp.Decoded, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if quiet {
		return nil
	}
	printInfo("%d rows", len(resp.Rows))
	for i, row := range resp.Rows {
		line, _ := json.Marshal(row)
		printRow(fmt.Sprintf("#%d", i+1), string(line))
	}
	return nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	data, err := readInput(args[0])
	if err != nil {
		return err
	}
	m, err := serialize.FromJSON(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	out := serialize.EncodeCompact(m)
	if encodeJSON {
		out = serialize.EncodeJSON(m)
	}
	if encodeHTML {
		out = html.EscapeString(out)
	}
	fmt.Println(out)
	return nil
}
