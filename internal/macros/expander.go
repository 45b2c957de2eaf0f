// Package macros expands {MACRO} placeholders in bid markup and notice URLs.
package macros

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// KeyValuePrefix introduces macros resolved from request key-values,
// e.g. {KV.section}.
const KeyValuePrefix = "KV."

// ExpansionFunc resolves one macro.
type ExpansionFunc func(ctx *Context) (string, error)

// Context contains all data available for macro expansion.
type Context struct {
	RequestID  string
	ImpID      string
	BidID      string
	Exchange   string
	Seat       string
	CreativeID string
	LineItemID int
	Timestamp  time.Time
	KeyValues  map[string]string
}

// Expander replaces registered macros. Placeholders it does not know, such as
// the exchange-side ${AUCTION_PRICE}, are left untouched.
type Expander struct {
	logger       *zap.Logger
	expansions   map[string]ExpansionFunc
	expansionsMu sync.RWMutex
	strictMode   bool // If true, any macro expansion failure fails the whole expansion

	expansionCounter *prometheus.CounterVec
	failureCounter   *prometheus.CounterVec
}

// NewExpander creates an expander with the default macros. Metrics are
// registered with reg; pass prometheus.DefaultRegisterer in production and
// nil in tests to use an isolated registry.
func NewExpander(logger *zap.Logger, reg prometheus.Registerer, strictMode bool) *Expander {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	e := &Expander{
		logger:     logger,
		expansions: make(map[string]ExpansionFunc),
		strictMode: strictMode,
		expansionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidder_macro_expansions_total",
				Help: "Total number of macro expansions performed",
			},
			[]string{"macro", "success"},
		),
		failureCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidder_macro_expansion_failures_total",
				Help: "Total number of macro expansion failures",
			},
			[]string{"macro"},
		),
	}
	e.registerDefaultMacros()
	return e
}

// Expand replaces every known macro in text. Values are query-escaped since
// macros mostly sit inside URLs.
func (e *Expander) Expand(text string, ctx *Context) (string, error) {
	if !strings.Contains(text, "{") {
		return text, nil
	}

	var replacements []string
	for _, macro := range placeholders(text) {
		value, ok, err := e.resolve(macro, ctx)
		if !ok {
			continue
		}
		if err != nil {
			e.expansionCounter.WithLabelValues(macro, "false").Inc()
			e.failureCounter.WithLabelValues(macro).Inc()
			if e.strictMode {
				return "", fmt.Errorf("expand macro %s: %w", macro, err)
			}
			e.logger.Warn("macro expansion failed", zap.String("macro", macro), zap.Error(err))
			continue
		}
		e.expansionCounter.WithLabelValues(macro, "true").Inc()
		replacements = append(replacements, "{"+macro+"}", url.QueryEscape(value))
	}
	if len(replacements) == 0 {
		return text, nil
	}
	return strings.NewReplacer(replacements...).Replace(text), nil
}

func (e *Expander) resolve(macro string, ctx *Context) (string, bool, error) {
	if key, ok := strings.CutPrefix(macro, KeyValuePrefix); ok {
		v, found := ctx.KeyValues[key]
		if !found {
			return "", true, fmt.Errorf("key-value %q not in request", key)
		}
		return v, true, nil
	}
	e.expansionsMu.RLock()
	fn, ok := e.expansions[macro]
	e.expansionsMu.RUnlock()
	if !ok {
		return "", false, nil
	}
	v, err := fn(ctx)
	return v, true, err
}

// placeholders returns the distinct names between braces in text.
func placeholders(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for rest := text; ; {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			break
		}
		name := rest[start+1 : start+end]
		if _, dup := seen[name]; !dup && name != "" {
			seen[name] = struct{}{}
			out = append(out, name)
		}
		rest = rest[start+end+1:]
	}
	return out
}

// RegisterMacro adds or replaces a macro.
func (e *Expander) RegisterMacro(name string, fn ExpansionFunc) error {
	if name == "" {
		return fmt.Errorf("macro name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("expansion function cannot be nil")
	}
	e.expansionsMu.Lock()
	e.expansions[name] = fn
	e.expansionsMu.Unlock()
	return nil
}

// Macros returns the registered macro names, sorted.
func (e *Expander) Macros() []string {
	e.expansionsMu.RLock()
	defer e.expansionsMu.RUnlock()
	names := make([]string, 0, len(e.expansions))
	for name := range e.expansions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Expander) registerDefaultMacros() {
	e.expansions["REQUEST_ID"] = func(ctx *Context) (string, error) { return ctx.RequestID, nil }
	e.expansions["IMP_ID"] = func(ctx *Context) (string, error) { return ctx.ImpID, nil }
	e.expansions["BID_ID"] = func(ctx *Context) (string, error) { return ctx.BidID, nil }
	e.expansions["EXCHANGE"] = func(ctx *Context) (string, error) { return ctx.Exchange, nil }
	e.expansions["SEAT"] = func(ctx *Context) (string, error) { return ctx.Seat, nil }
	e.expansions["CREATIVE_ID"] = func(ctx *Context) (string, error) { return ctx.CreativeID, nil }
	e.expansions["LINE_ITEM_ID"] = func(ctx *Context) (string, error) {
		return strconv.Itoa(ctx.LineItemID), nil
	}

	e.expansions["TIMESTAMP"] = func(ctx *Context) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.Unix(), 10), nil
	}
	e.expansions["TIMESTAMP_MS"] = func(ctx *Context) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.UnixMilli(), 10), nil
	}

	// cache busting
	e.expansions["UUID"] = func(*Context) (string, error) { return uuid.NewString(), nil }
}
